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

var weiboRe = regexp.MustCompile(`(?:m\.weibo\.cn|weibo\.com)/(?:detail|status)/(\d+)`)

// Weibo timestamps look like "Tue Jan 25 23:29:47 +0800 2022".
const weiboTimeLayout = "Mon Jan 02 15:04:05 -0700 2006"

type weibo struct {
	env     *Env
	baseURL string
}

func newWeibo(env *Env) *weibo {
	return &weibo{env: env, baseURL: "https://m.weibo.cn"}
}

func (s *weibo) source() Source {
	return Source{
		Name:      "weibo",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *weibo) match(_ context.Context, input string) (string, bool) {
	if m := weiboRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type weiboRender struct {
	Status struct {
		CreatedAt  string `json:"created_at"`
		Text       string `json:"text"`
		BmiddlePic string `json:"bmiddle_pic"`
		User       struct {
			ID         int64  `json:"id"`
			ScreenName string `json:"screen_name"`
		} `json:"user"`
	} `json:"status"`
}

func (s *weibo) extract(ctx context.Context, wid, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/detail/%s", s.baseURL, wid)
	resp, err := s.env.Client.Get(ctx, pageURL)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("wbapierr: %v", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("wbparsererr: %v", err))
	}

	// The mobile detail page inlines its state as
	// "var $render_data = [{...}][0] || {};".
	var payload string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if text := sel.Text(); strings.Contains(text, "$render_data") {
			payload = text
			return false
		}
		return true
	})
	start := strings.Index(payload, "[")
	if start < 0 {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("wbparsererr: no render data for %s", wid))
	}
	var rendered []weiboRender
	if err := json.NewDecoder(strings.NewReader(payload[start:])).Decode(&rendered); err != nil || len(rendered) == 0 {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("wbparsererr: render data decode failed for %s", wid))
	}
	status := rendered[0].Status

	ptime, err := s.env.ptimeFromLayout(weiboTimeLayout, status.CreatedAt)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("wbparsererr: %v", err))
	}

	return model.OK(&model.Record{
		Title:      fmt.Sprintf("%s的微博", status.User.ScreenName),
		UID:        uid,
		Cover:      status.BmiddlePic,
		Desc:       status.Text,
		PTime:      ptime,
		Author:     []string{fmt.Sprintf("weibo-author:%d", status.User.ID)},
		AuthorName: []string{status.User.ScreenName},
		Category:   model.CategoryDrawing,
	})
}
