package sites

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var (
	acfunVideoRe = regexp.MustCompile(`acfun\.cn/v/ac(\d+)`)
	acfunBareRe  = regexp.MustCompile(`(?:^|[^A-Za-z0-9])ac(\d+)`)
)

type acfun struct {
	env     *Env
	baseURL string
}

func newAcfun(env *Env) *acfun {
	return &acfun{env: env, baseURL: "https://www.acfun.cn"}
}

func (s *acfun) source() Source {
	return Source{
		Name:      "acfun",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

// match accepts video URLs and bare ac ids. Article URLs (/a/ac...) belong to
// the acarticle source, which sits earlier in the registry.
func (s *acfun) match(_ context.Context, input string) (string, bool) {
	if m := acfunVideoRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if strings.Contains(input, "acfun.cn/a/ac") {
		return "", false
	}
	if m := acfunBareRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

func (s *acfun) extract(ctx context.Context, acid, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/v/ac%s", s.baseURL, acid)
	resp, err := s.env.Client.Get(ctx, pageURL)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("acapierr: %v", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("acparsererr: %v", err))
	}

	title := strings.TrimSpace(doc.Find("h1.title span").First().Text())
	upName := doc.Find("a.up-name").First()
	href, _ := upName.Attr("href")
	desc := strings.TrimSpace(doc.Find("div.description-container").First().Text())
	publish := strings.TrimSpace(doc.Find("div.publish-time").First().Text())
	if title == "" || href == "" || publish == "" {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("acparsererr: missing video markup for ac%s", acid))
	}

	// "投稿时间 2022-01-30" — keep only the date part.
	if idx := strings.IndexAny(publish, "0123456789"); idx >= 0 {
		publish = publish[idx:]
	}
	ptime, err := s.env.ptimeFromDate("2006-01-02", publish)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("acparsererr: %v", err))
	}

	acuid := strings.TrimPrefix(href, "/u/")
	return model.OK(&model.Record{
		Title:      title,
		UID:        uid,
		Desc:       desc,
		PTime:      ptime,
		Author:     []string{"acfun-author:" + acuid},
		AuthorName: []string{strings.TrimSpace(upName.Text())},
		Category:   model.CategoryVideo,
	})
}
