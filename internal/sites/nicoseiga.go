package sites

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var (
	nicoSeigaURLRe  = regexp.MustCompile(`seiga\.nicovideo\.jp/seiga/im(\d+)`)
	nicoSeigaBareRe = regexp.MustCompile(`(?:^|[^A-Za-z0-9])im(\d+)`)
)

// Seiga publishes zone-less JST wall-clock times, e.g. "2022年02月09日 00:03:57".
const seigaTimeLayout = "2006年01月02日 15:04:05"

type nicoSeiga struct {
	env     *Env
	baseURL string
}

func newNicoSeiga(env *Env) *nicoSeiga {
	return &nicoSeiga{env: env, baseURL: "https://seiga.nicovideo.jp"}
}

func (s *nicoSeiga) source() Source {
	return Source{
		Name:      "nicoseiga",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *nicoSeiga) match(_ context.Context, input string) (string, bool) {
	if m := nicoSeigaURLRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if m := nicoSeigaBareRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

func (s *nicoSeiga) extract(ctx context.Context, imid, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/seiga/im%s", s.baseURL, imid)
	resp, err := s.env.Client.Get(ctx, pageURL, fetch.ViaProxy())
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("seigaapierr: %v", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("seigaparsererr: %v", err))
	}

	title := strings.TrimSpace(doc.Find(".lg_ttl_illust h1").First().Text())
	userHref, _ := doc.Find(`#header a[href^="/user/illust/"]`).First().Attr("href")
	cover, _ := doc.Find("a#link_thumbnail_main img").First().Attr("src")
	detail := doc.Find("#illust_area td > div")
	desc := strings.TrimSpace(detail.Eq(2).Text())
	postTime := strings.TrimSpace(detail.Eq(3).Text())
	authorName := strings.TrimSpace(detail.Eq(1).Find("strong").First().Text())

	if title == "" || userHref == "" || cover == "" || postTime == "" {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("seigaparsererr: missing illust markup for im%s", imid))
	}
	// Trailing "投稿" label after the timestamp.
	postTime = strings.TrimSpace(strings.TrimSuffix(postTime, "投稿"))

	ptime, err := s.env.ptimeFromWallClock(seigaTimeLayout, postTime, jst)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("seigaparsererr: %v", err))
	}

	seigaUID := strings.TrimPrefix(userHref, "/user/illust/")
	return model.OK(&model.Record{
		Title:      title,
		UID:        uid,
		Cover:      cover,
		Media:      []string{cover},
		Desc:       desc,
		PTime:      ptime,
		Author:     []string{"nicoseiga-author:" + seigaUID},
		AuthorName: []string{authorName},
		Category:   model.CategoryDrawing,
	})
}
