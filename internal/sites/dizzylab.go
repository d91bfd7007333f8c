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

var dizzylabRe = regexp.MustCompile(`dizzylab\.net/d/([^/?#\s]+)`)

type dizzylab struct {
	env     *Env
	baseURL string
}

func newDizzylab(env *Env) *dizzylab {
	return &dizzylab{env: env, baseURL: "https://www.dizzylab.net"}
}

func (s *dizzylab) source() Source {
	return Source{
		Name:      "dizzylab",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *dizzylab) match(_ context.Context, input string) (string, bool) {
	if m := dizzylabRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

func (s *dizzylab) extract(ctx context.Context, wid, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/d/%s/", s.baseURL, wid)
	resp, err := s.env.Client.Get(ctx, pageURL)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("dizzyapierr: %v", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("dizzyparsererr: %v", err))
	}

	if strings.Contains(doc.Find("head title").Text(), "出错了") {
		return model.Fail(model.StatusErr, fmt.Sprintf("error when request %s", pageURL))
	}

	title := strings.TrimSpace(doc.Find("div.col h1").First().Text())
	cover, _ := doc.Find(`head link[rel="shortcut icon"]`).Attr("href")
	desc, _ := doc.Find(`head meta[name="description"]`).Attr("content")
	authorName := strings.TrimSpace(strings.ReplaceAll(doc.Find("div.col h4 a").First().Text(), "@ ", ""))
	if title == "" || authorName == "" {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("dizzyparsererr: missing album markup for %s", wid))
	}

	var media []string
	doc.Find("ul.playlist--list li").Each(func(_ int, sel *goquery.Selection) {
		if audio, ok := sel.Attr("data-audio"); ok && audio != "" {
			media = append(media, audio)
		}
	})

	// "... 发布于2022年1月30日 ..." somewhere in the release notes.
	var ptime string
	doc.Find("div.col p.text-left").Each(func(_ int, sel *goquery.Selection) {
		if ptime != "" {
			return
		}
		text := sel.Text()
		from := strings.Index(text, "发布于")
		to := strings.Index(text, "日")
		if from < 0 || to < 0 {
			return
		}
		dateStr := text[from+len("发布于") : to+len("日")]
		if parsed, err := s.env.ptimeFromDate("2006年1月2日", dateStr); err == nil {
			ptime = parsed
		}
	})

	return model.OK(&model.Record{
		Title:      title,
		UID:        uid,
		Cover:      cover,
		Media:      media,
		Desc:       desc,
		PTime:      ptime,
		Author:     []string{"dizzylab-author:" + authorName},
		AuthorName: []string{authorName},
		Category:   model.CategoryMusic,
	})
}
