package sites

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var (
	nicoVideoURLRe  = regexp.MustCompile(`(?:nicovideo\.jp/watch|nico\.ms)/sm(\d+)`)
	nicoVideoBareRe = regexp.MustCompile(`(?:^|[^A-Za-z0-9])sm(\d+)`)
	nicoUserRe      = regexp.MustCompile(`user/(\d+)`)
)

type nicoVideo struct {
	env     *Env
	baseURL string
}

func newNicoVideo(env *Env) *nicoVideo {
	return &nicoVideo{env: env, baseURL: "https://www.nicovideo.jp"}
}

func (s *nicoVideo) source() Source {
	return Source{
		Name:      "nicovideo",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *nicoVideo) match(_ context.Context, input string) (string, bool) {
	if m := nicoVideoURLRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if m := nicoVideoBareRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

// The watch page carries its metadata as schema.org JSON-LD.
type nicoLdJSON struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ThumbnailURL []string `json:"thumbnailUrl"`
	UploadDate   string   `json:"uploadDate"`
	Author       struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	} `json:"author"`
}

func (s *nicoVideo) extract(ctx context.Context, smid, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/watch/sm%s", s.baseURL, smid)
	resp, err := s.env.Client.Get(ctx, pageURL, fetch.ViaProxy())
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("nicoapierr: %v", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("nicoparsererr: %v", err))
	}

	raw := doc.Find("script.LdJson").First().Text()
	if raw == "" {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("nicoparsererr: no LdJson for sm%s", smid))
	}
	var ld nicoLdJSON
	if err := json.Unmarshal([]byte(raw), &ld); err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("nicoparsererr: %v", err))
	}

	userMatch := nicoUserRe.FindStringSubmatch(ld.Author.URL)
	if userMatch == nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("nicoparsererr: no user id in %q", ld.Author.URL))
	}
	if len(ld.ThumbnailURL) == 0 {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("nicoparsererr: no thumbnail for sm%s", smid))
	}

	// e.g. "2022-01-30T19:00:00+09:00"
	ptime, err := s.env.ptimeFromLayout(time.RFC3339, ld.UploadDate)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("nicoparsererr: %v", err))
	}

	return model.OK(&model.Record{
		Title:      ld.Name,
		UID:        uid,
		Cover:      ld.ThumbnailURL[0],
		Desc:       ld.Description,
		PTime:      ptime,
		Author:     []string{"nicovideo-author:" + userMatch[1]},
		AuthorName: []string{ld.Author.Name},
		Category:   model.CategoryVideo,
	})
}
