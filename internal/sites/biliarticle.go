package sites

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var biliCvRe = regexp.MustCompile(`(?:^|[^A-Za-z0-9])[Cc][Vv](\d+)`)

// biliArticle covers bilibili's column articles (cv ids). Registered ahead of
// the video source so "cv" ids are never swallowed by the broader grammar.
type biliArticle struct {
	env *Env
	api string
}

func newBiliArticle(env *Env) *biliArticle {
	return &biliArticle{env: env, api: "https://api.bilibili.com/x/article/viewinfo"}
}

func (s *biliArticle) source() Source {
	return Source{
		Name:      "biliarticle",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *biliArticle) match(_ context.Context, input string) (string, bool) {
	if m := biliCvRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type biliArticleReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Title      string `json:"title"`
		BannerURL  string `json:"banner_url"`
		Mid        int64  `json:"mid"`
		AuthorName string `json:"author_name"`
		PublishAt  int64  `json:"publish_time"`
	} `json:"data"`
}

func (s *biliArticle) extract(ctx context.Context, cvid, uid string) model.Envelope {
	var reply biliArticleReply
	err := s.env.Client.GetJSON(ctx, s.api, &reply,
		fetch.WithQuery(url.Values{"id": {cvid}}),
		fetch.WithHeaders(map[string]string{"Referer": "https://www.bilibili.com"}),
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

	record := &model.Record{
		Title:      data.Title,
		UID:        uid,
		Cover:      data.BannerURL,
		Author:     []string{fmt.Sprintf("bilibili-author:%d", data.Mid)},
		AuthorName: []string{data.AuthorName},
		Category:   model.CategoryArticle,
	}
	if data.PublishAt > 0 {
		record.PTime = s.env.ptimeFromUnix(data.PublishAt)
	}
	return model.Envelope{
		Status: model.StatusOK,
		Msg:    fmt.Sprintf("biliapimsg: %s", reply.Message),
		Data:   record,
	}
}
