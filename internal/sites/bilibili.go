package sites

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var (
	// Short-link hosts redirect to the canonical video URL.
	biliShortRe = regexp.MustCompile(`https?://(?:bili(?:22|23|33|2233)\.cn|b23\.tv)/[A-Za-z0-9]+`)
	biliAvRe    = regexp.MustCompile(`(?:^|[^A-Za-z0-9])[Aa][Vv](\d+)`)
	biliBvRe    = regexp.MustCompile(`(?:^|[^A-Za-z0-9])(BV[A-Za-z0-9]{10})(?:[^A-Za-z0-9]|$)`)
)

// Zone labels the upstream files under the music category.
var biliMusicZones = map[string]struct{}{
	"原创音乐":          {},
	"翻唱":            {},
	"演奏":            {},
	"VOCALOID·UTAU": {},
	"音乐现场":          {},
	"MV":            {},
	"乐评盘点":          {},
	"音乐教学":          {},
	"音乐综合":          {},
	"音频":            {},
	"说唱":            {},
}

type bilibili struct {
	env *Env
	api string
}

func newBilibili(env *Env) *bilibili {
	return &bilibili{env: env, api: "https://api.bilibili.com/x/web-interface/view"}
}

func (s *bilibili) source() Source {
	return Source{
		Name:      "bilibili",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

// match accepts av ids, BV ids and the rotating family of short-link hosts.
// Short links are resolved to their target first, then matched again.
func (s *bilibili) match(ctx context.Context, input string) (string, bool) {
	if m := biliAvRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if m := biliBvRe.FindStringSubmatch(input); m != nil {
		aid, err := bvidToAid(m[1])
		if err != nil {
			return "", false
		}
		return strconv.FormatInt(aid, 10), true
	}
	if short := biliShortRe.FindString(input); short != "" {
		target, err := s.env.Client.RedirectLocation(ctx, short)
		if err != nil {
			s.env.Logger.Warn("bilibili short link resolution failed", zap.String("url", short), zap.Error(err))
			return "", false
		}
		if m := biliAvRe.FindStringSubmatch(target); m != nil {
			return m[1], true
		}
		if m := biliBvRe.FindStringSubmatch(target); m != nil {
			aid, err := bvidToAid(m[1])
			if err != nil {
				return "", false
			}
			return strconv.FormatInt(aid, 10), true
		}
	}
	return "", false
}

type biliViewReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Title     string `json:"title"`
		Pic       string `json:"pic"`
		Desc      string `json:"desc"`
		Pubdate   int64  `json:"pubdate"`
		Copyright int    `json:"copyright"`
		Tname     string `json:"tname"`
		Owner     struct {
			Mid  int64  `json:"mid"`
			Name string `json:"name"`
		} `json:"owner"`
		Staff []struct {
			Mid  int64  `json:"mid"`
			Name string `json:"name"`
		} `json:"staff"`
	} `json:"data"`
}

func (s *bilibili) extract(ctx context.Context, aid, uid string) model.Envelope {
	var reply biliViewReply
	err := s.env.Client.GetJSON(ctx, s.api, &reply,
		fetch.WithQuery(url.Values{"aid": {aid}}),
		fetch.WithHeaders(map[string]string{"Referer": "https://www.bilibili.com"}),
		fetch.WithCookies(s.biliCookies()),
	)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("biliapierr: %v", err))
	}
	if reply.Data == nil {
		if reply.Code == -352 {
			return model.Fail(model.StatusAPIErr, "biliapi: banned")
		}
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("biliapimsg: %s", reply.Message))
	}
	data := reply.Data

	var author, authorName []string
	if len(data.Staff) > 0 {
		for _, st := range data.Staff {
			author = append(author, fmt.Sprintf("bilibili-author:%d", st.Mid))
			authorName = append(authorName, st.Name)
		}
	} else {
		author = []string{fmt.Sprintf("bilibili-author:%d", data.Owner.Mid)}
		authorName = []string{data.Owner.Name}
	}

	category := model.CategoryVideo
	if _, ok := biliMusicZones[data.Tname]; ok {
		category = model.CategoryMusic
	} else if data.Tname == "绘画" {
		category = model.CategoryDrawing
	} else if data.Tname == "手工" {
		category = model.CategoryCraft
	}

	return model.Envelope{
		Status: model.StatusOK,
		Msg:    fmt.Sprintf("biliapimsg: %s", reply.Message),
		Data: &model.Record{
			Title:      data.Title,
			UID:        uid,
			Cover:      data.Pic,
			Desc:       data.Desc,
			PTime:      s.env.ptimeFromUnix(data.Pubdate),
			Author:     author,
			AuthorName: authorName,
			Category:   category,
			Repost:     model.Bool(data.Copyright != 1),
		},
	}
}

func (s *bilibili) biliCookies() map[string]string {
	if s.env.Cfg.BiliSessData == "" {
		return nil
	}
	return map[string]string{"SESSDATA": s.env.Cfg.BiliSessData}
}
