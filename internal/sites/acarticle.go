package sites

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var acfunArticleRe = regexp.MustCompile(`acfun\.cn/a/ac(\d+)`)

// acfunArticle scrapes article pages, whose payload sits as a JSON literal
// inside an inline script.
type acfunArticle struct {
	env     *Env
	baseURL string
}

func newAcfunArticle(env *Env) *acfunArticle {
	return &acfunArticle{env: env, baseURL: "https://www.acfun.cn"}
}

func (s *acfunArticle) source() Source {
	return Source{
		Name:      "acarticle",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *acfunArticle) match(_ context.Context, input string) (string, bool) {
	if m := acfunArticleRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type acfunArticlePayload struct {
	Title            string `json:"title"`
	CoverURL         string `json:"coverUrl"`
	Description      string `json:"description"`
	CreateTimeMillis int64  `json:"createTimeMillis"`
	User             struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	} `json:"user"`
}

func (s *acfunArticle) extract(ctx context.Context, acid, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/a/ac%s", s.baseURL, acid)
	resp, err := s.env.Client.Get(ctx, pageURL)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("acaapierr: %v", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("acaparsererr: %v", err))
	}

	script := doc.Find("#main script").First().Text()
	start := strings.Index(script, "{")
	if start < 0 {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("acaparsererr: no article payload for ac%s", acid))
	}
	// The payload is the first JSON value in the script; the decoder stops at
	// its closing brace and ignores the trailing javascript.
	var payload acfunArticlePayload
	if err := json.NewDecoder(strings.NewReader(script[start:])).Decode(&payload); err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("acaparsererr: %v", err))
	}

	cover := payload.CoverURL
	if i := strings.Index(cover, "?"); i >= 0 {
		cover = cover[:i]
	}

	return model.OK(&model.Record{
		Title:      payload.Title,
		UID:        uid,
		Cover:      cover,
		Desc:       payload.Description,
		PTime:      s.env.ptimeFromUnix(payload.CreateTimeMillis / 1000),
		Author:     []string{"acfun-author:" + payload.User.ID.String()},
		AuthorName: []string{payload.User.Name},
		Category:   model.CategoryArticle,
	})
}
