package sites

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PatchyVideo/thvote-scraper/internal/cache"
	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

func netEnv(t *testing.T) *Env {
	t.Helper()
	client, err := fetch.New(fetch.Config{})
	require.NoError(t, err)
	return NewEnv(client, cache.NewMemory(), Config{Timezone: "Asia/Shanghai"}, zap.NewNop())
}

const dizzylabPage = `<html><head>
<title>My Album - dizzylab</title>
<link rel="shortcut icon" href="https://r.dizzylab.net/covers/MYALBUM.jpg">
<meta name="description" content="an arrange album">
</head><body>
<div class="col"><h1>My Album</h1>
<h4><a href="/l/circleX/">@ circleX</a></h4>
<p class="text-left">本专辑发布于2022年1月30日，共2首曲目。</p></div>
<ul class="playlist--list">
<li data-audio="https://r.dizzylab.net/t1.mp3"></li>
<li data-audio="https://r.dizzylab.net/t2.mp3"></li>
</ul>
</body></html>`

func TestDizzylabExtract(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/d/MYALBUM/", r.URL.Path)
		_, _ = w.Write([]byte(dizzylabPage))
	}))
	defer ts.Close()

	s := newDizzylab(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "MYALBUM", "dizzylab:MYALBUM")
	require.Equal(t, model.StatusOK, resp.Status)
	require.Equal(t, "My Album", resp.Data.Title)
	require.Equal(t, "dizzylab:MYALBUM", resp.Data.UID)
	require.Equal(t, "https://r.dizzylab.net/covers/MYALBUM.jpg", resp.Data.Cover)
	require.Equal(t, []string{"https://r.dizzylab.net/t1.mp3", "https://r.dizzylab.net/t2.mp3"}, resp.Data.Media)
	require.Equal(t, "2022-01-30 00:00:00 +0800", resp.Data.PTime)
	require.Equal(t, []string{"circleX"}, resp.Data.AuthorName)
	require.Equal(t, model.CategoryMusic, resp.Data.Category)
}

func TestDizzylabExtractErrorPage(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>出错了 - dizzylab</title></head><body></body></html>`))
	}))
	defer ts.Close()

	s := newDizzylab(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "GONE", "dizzylab:GONE")
	require.Equal(t, model.StatusErr, resp.Status)
	require.Nil(t, resp.Data)
}

const steamPage = `<html><body>
<div id="appHubAppName">東方紅魔郷</div>
<div id="gameHeaderImageCtn"><img src="https://cdn.steamstatic.com/header.jpg?t=1638213"></div>
<div class="game_description_snippet"> 弾幕シューティング </div>
<div class="highlight_movie" data-mp4-hd-source="https://cdn.steamstatic.com/movie.mp4?t=1638213"></div>
<a class="highlight_screenshot_link" href="https://cdn.steamstatic.com/ss1.jpg?t=1638213"></a>
<div id="developers_list"><a href="#">Team Shanghai Alice</a></div>
<div class="release_date"><div class="date">2002 年 8 月 11 日</div></div>
</body></html>`

func TestSteamExtract(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Accept-Language"), "zh-CN")
		_, _ = w.Write([]byte(steamPage))
	}))
	defer ts.Close()

	s := newSteam(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "1100140", "steam:1100140")
	require.Equal(t, model.StatusOK, resp.Status)
	require.Equal(t, "東方紅魔郷", resp.Data.Title)
	require.Equal(t, "https://cdn.steamstatic.com/header.jpg", resp.Data.Cover)
	require.Equal(t, []string{
		"https://cdn.steamstatic.com/movie.mp4",
		"https://cdn.steamstatic.com/ss1.jpg",
	}, resp.Data.Media)
	require.Equal(t, "弾幕シューティング", resp.Data.Desc)
	require.Equal(t, "2002-08-11 00:00:00 +0800", resp.Data.PTime)
	require.Equal(t, []string{"Team Shanghai Alice"}, resp.Data.AuthorName)
	require.Equal(t, model.CategorySoftware, resp.Data.Category)
}

func TestSteamExtractRedirectIsError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	}))
	defer ts.Close()

	s := newSteam(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "999", "steam:999")
	require.Equal(t, model.StatusErr, resp.Status)
}

const dlsitePage = `<html><body>
<h1 id="work_name">東方アレンジCD</h1>
<div class="product-slider-data">
<div data-src="//img.dlsite.jp/main.jpg"></div>
<div data-thumb="//img.dlsite.jp/s2.jpg"></div>
</div>
<table id="work_maker"><tr><td class="maker_name">
<a href="https://www.dlsite.com/home/circle/profile/=/maker_id/RG12345.html">サークル名</a>
</td></tr></table>
<table id="work_outline">
<tr><th>販売日</th><td>2022年01月30日 0時</td></tr>
<tr><th>年齢指定</th><td><span>全年齢</span></td></tr>
<tr><th>作品形式</th><td><a>音楽</a></td></tr>
<tr><th>ジャンル</th><td><a>東方Project</a></td></tr>
</table>
<div itemprop="description">説明文</div>
</body></html>`

func TestDlsiteExtract(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/home/work/=/product_id/RJ123456.html", r.URL.Path)
		_, _ = w.Write([]byte(dlsitePage))
	}))
	defer ts.Close()

	s := newDlsite(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "RJ123456", "dlsite:RJ123456")
	require.Equal(t, model.StatusOK, resp.Status)
	require.Equal(t, "東方アレンジCD", resp.Data.Title)
	require.Equal(t, "https://img.dlsite.jp/main.jpg", resp.Data.Cover)
	require.Equal(t, []string{"https://img.dlsite.jp/main.jpg", "https://img.dlsite.jp/s2.jpg"}, resp.Data.Media)
	require.Equal(t, []string{"dlsite-author:RG12345"}, resp.Data.Author)
	require.Equal(t, []string{"サークル名"}, resp.Data.AuthorName)
	require.Equal(t, "2022-01-30 00:00:00 +0800", resp.Data.PTime)
	require.Equal(t, model.CategoryMusic, resp.Data.Category)
}

func TestDlsiteExtractAgeRestricted(t *testing.T) {
	t.Parallel()

	t.Run("empty body", func(t *testing.T) {
		t.Parallel()
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		s := newDlsite(netEnv(t))
		s.baseURL = ts.URL
		resp := s.extract(context.Background(), "RJ1", "dlsite:RJ1")
		require.Equal(t, model.StatusR18, resp.Status)
	})

	t.Run("age rating row", func(t *testing.T) {
		t.Parallel()
		page := `<html><body><h1 id="work_name">作品</h1>
<table id="work_outline"><tr><th>年齢指定</th><td><span>18禁</span></td></tr></table>
</body></html>`
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(page))
		}))
		defer ts.Close()

		s := newDlsite(netEnv(t))
		s.baseURL = ts.URL
		resp := s.extract(context.Background(), "RJ2", "dlsite:RJ2")
		require.Equal(t, model.StatusR18, resp.Status)
	})
}

func TestDlsiteExtractNotTouhouWarns(t *testing.T) {
	t.Parallel()

	page := `<html><body><h1 id="work_name">オリジナルCD</h1>
<table id="work_outline">
<tr><th>年齢指定</th><td><span>全年齢</span></td></tr>
<tr><th>作品形式</th><td><a>音楽</a></td></tr>
<tr><th>ジャンル</th><td><a>オリジナル</a></td></tr>
</table>
</body></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer ts.Close()

	s := newDlsite(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "RJ3", "dlsite:RJ3")
	require.Equal(t, model.StatusWarning, resp.Status)
	require.Equal(t, "may not touhou. ", resp.Msg)
	require.NotNil(t, resp.Data)
	// No maker anchor on the page: both author fields stay empty rather
	// than carrying a blank name.
	require.Nil(t, resp.Data.Author)
	require.Nil(t, resp.Data.AuthorName)
}

const melonPage = `<html><head>
<title>例大祭新刊 東方本の通販・購入はメロンブックス</title>
<meta property="og:image" content="https://melonbooks.akamaized.net/resize.php?image=abc.jpg">
<meta property="og:description" content="同人誌です">
</head><body>
<div id="thumbs"><a href="//melonbooks.akamaized.net/full1.jpg"></a></div>
<a href="https://www.melonbooks.co.jp/circle/index.php?circle_id=12345">サークルA</a>
<div class="table-wrapper"><table>
<tr><th>発行日</th><td>2022年5月8日</td></tr>
</table></div>
</body></html>`

func TestMelonBooksExtract(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/detail/detail.php", r.URL.Path)
		require.Equal(t, "312456", r.URL.Query().Get("product_id"))
		_, _ = w.Write([]byte(melonPage))
	}))
	defer ts.Close()

	s := newMelonBooks(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "312456", "melonbooks:312456")
	require.Equal(t, model.StatusOK, resp.Status)
	require.Equal(t, "例大祭新刊 東方本", resp.Data.Title)
	require.Equal(t, "https://melonbooks.akamaized.net/resize.php?image=abc.jpg", resp.Data.Cover)
	require.Equal(t, "同人誌です", resp.Data.Desc)
	require.Equal(t, []string{"https://melonbooks.akamaized.net/full1.jpg"}, resp.Data.Media)
	require.Equal(t, []string{"melonbooks-author:12345"}, resp.Data.Author)
	require.Equal(t, []string{"サークルA"}, resp.Data.AuthorName)
	require.Equal(t, "2022-05-08 00:00:00 +0800", resp.Data.PTime)
}

const nicoVideoPage = `<html><head>
<script class="LdJson" type="application/ld+json">{
  "name": "東方アレンジPV",
  "description": "例大祭新作クロスフェード",
  "thumbnailUrl": ["https://nicovideo.cdn.nimg.jp/thumbnails/1/1.L"],
  "uploadDate": "2022-01-30T19:00:00+09:00",
  "author": {"url": "https://www.nicovideo.jp/user/12345", "name": "うp主"}
}</script>
</head><body></body></html>`

func TestNicoVideoExtract(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/watch/sm9", r.URL.Path)
		_, _ = w.Write([]byte(nicoVideoPage))
	}))
	defer ts.Close()

	s := newNicoVideo(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "9", "nicovideo:9")
	require.Equal(t, model.StatusOK, resp.Status)
	require.Equal(t, "東方アレンジPV", resp.Data.Title)
	require.Equal(t, "https://nicovideo.cdn.nimg.jp/thumbnails/1/1.L", resp.Data.Cover)
	require.Equal(t, "2022-01-30 18:00:00 +0800", resp.Data.PTime)
	require.Equal(t, []string{"nicovideo-author:12345"}, resp.Data.Author)
	require.Equal(t, []string{"うp主"}, resp.Data.AuthorName)
	require.Equal(t, model.CategoryVideo, resp.Data.Category)
}

func TestNicoVideoExtractMalformedPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
	}{
		{
			name: "metadata script absent",
			page: `<html><head><title>niconico</title></head><body><p>maintenance</p></body></html>`,
		},
		{
			name: "metadata not json",
			page: `<html><head><script class="LdJson">window.__mark = 1;</script></head><body></body></html>`,
		},
		{
			name: "author url without user id",
			page: `<html><head><script class="LdJson">{
  "name": "x", "thumbnailUrl": ["https://c/1.L"],
  "uploadDate": "2022-01-30T19:00:00+09:00",
  "author": {"url": "https://ch.nicovideo.jp/channel/ch1", "name": "ch"}
}</script></head><body></body></html>`,
		},
		{
			name: "unparseable upload date",
			page: `<html><head><script class="LdJson">{
  "name": "x", "thumbnailUrl": ["https://c/1.L"],
  "uploadDate": "someday",
  "author": {"url": "https://www.nicovideo.jp/user/1", "name": "u"}
}</script></head><body></body></html>`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.page))
			}))
			defer ts.Close()

			s := newNicoVideo(netEnv(t))
			s.baseURL = ts.URL

			resp := s.extract(context.Background(), "9", "nicovideo:9")
			require.Equal(t, model.StatusParserErr, resp.Status)
			require.Contains(t, resp.Msg, "nicoparsererr")
			require.Nil(t, resp.Data)
		})
	}
}

const weiboPage = `<html><body>
<script>var config = {};</script>
<script>var $render_data = [{
  "status": {
    "created_at": "Tue Jan 25 23:29:47 +0800 2022",
    "text": "新绘完成",
    "bmiddle_pic": "https://wx1.sinaimg.cn/bmiddle/abc.jpg",
    "user": {"id": 567890, "screen_name": "画师甲"}
  }
}][0] || {};</script>
</body></html>`

func TestWeiboExtract(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/detail/4591968146704523", r.URL.Path)
		_, _ = w.Write([]byte(weiboPage))
	}))
	defer ts.Close()

	s := newWeibo(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "4591968146704523", "weibo:4591968146704523")
	require.Equal(t, model.StatusOK, resp.Status)
	require.Equal(t, "画师甲的微博", resp.Data.Title)
	require.Equal(t, "https://wx1.sinaimg.cn/bmiddle/abc.jpg", resp.Data.Cover)
	require.Equal(t, "新绘完成", resp.Data.Desc)
	require.Equal(t, "2022-01-25 23:29:47 +0800", resp.Data.PTime)
	require.Equal(t, []string{"weibo-author:567890"}, resp.Data.Author)
	require.Equal(t, []string{"画师甲"}, resp.Data.AuthorName)
}

func TestWeiboExtractMalformedPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
	}{
		{
			name: "render data script absent",
			page: `<html><body><script>var config = {};</script></body></html>`,
		},
		{
			name: "render data not json",
			page: `<html><body><script>var $render_data = [oops][0] || {};</script></body></html>`,
		},
		{
			name: "render data empty array",
			page: `<html><body><script>var $render_data = [][0] || {};</script></body></html>`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.page))
			}))
			defer ts.Close()

			s := newWeibo(netEnv(t))
			s.baseURL = ts.URL

			resp := s.extract(context.Background(), "1", "weibo:1")
			require.Equal(t, model.StatusParserErr, resp.Status)
			require.Contains(t, resp.Msg, "wbparsererr")
			require.Nil(t, resp.Data)
		})
	}
}

func TestMelonBooksExtractAgeGate(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>年齢認証 | メロンブックス</title></head><body></body></html>`))
	}))
	defer ts.Close()

	s := newMelonBooks(netEnv(t))
	s.baseURL = ts.URL

	resp := s.extract(context.Background(), "1", "melonbooks:1")
	require.Equal(t, model.StatusR18, resp.Status)
}
