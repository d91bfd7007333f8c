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

var steamRe = regexp.MustCompile(`store\.steampowered\.com/app/(\d+)`)

type steam struct {
	env     *Env
	baseURL string
}

func newSteam(env *Env) *steam {
	return &steam{env: env, baseURL: "https://store.steampowered.com"}
}

func (s *steam) source() Source {
	return Source{
		Name:      "steam",
		RateLimit: 100 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *steam) match(_ context.Context, input string) (string, bool) {
	if m := steamRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

// Steam CDN URLs carry a "?t=" cache-buster that changes between fetches.
func stripCacheBuster(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i]
	}
	return u
}

func (s *steam) extract(ctx context.Context, appID, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/app/%s/", s.baseURL, appID)
	resp, err := s.env.Client.Get(ctx, pageURL,
		fetch.ViaProxy(),
		fetch.NoRedirect(),
		fetch.WithHeaders(map[string]string{"Accept-Language": "zh-CN,zh;q=0.9"}),
	)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("steamapierr: %v", err))
	}
	// Age gates and unknown apps bounce to the storefront root.
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return model.Fail(model.StatusErr, fmt.Sprintf("steam app %s redirected away", appID))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("steamparsererr: %v", err))
	}

	title := strings.TrimSpace(doc.Find("#appHubAppName").Text())
	if title == "" {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("steamparsererr: no app name for %s", appID))
	}
	cover, _ := doc.Find("#gameHeaderImageCtn img").Attr("src")
	cover = stripCacheBuster(cover)
	desc := strings.TrimSpace(doc.Find(".game_description_snippet").Text())

	var media []string
	doc.Find(".highlight_movie").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("data-mp4-hd-source"); ok && src != "" {
			media = append(media, stripCacheBuster(src))
		}
	})
	doc.Find("a.highlight_screenshot_link").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			media = append(media, stripCacheBuster(href))
		}
	})

	var developers []string
	doc.Find(`#developers_list a`).Each(func(_ int, sel *goquery.Selection) {
		if name := strings.TrimSpace(sel.Text()); name != "" {
			developers = append(developers, name)
		}
	})
	author := make([]string, 0, len(developers))
	for _, name := range developers {
		author = append(author, "steam-author:"+name)
	}

	var ptime string
	if dateStr := strings.TrimSpace(doc.Find(".release_date .date").First().Text()); dateStr != "" {
		if parsed, err := s.env.ptimeFromDate("2006 年 1 月 2 日", dateStr); err == nil {
			ptime = parsed
		}
	}

	return model.OK(&model.Record{
		Title:      title,
		UID:        uid,
		Cover:      cover,
		Media:      media,
		Desc:       desc,
		PTime:      ptime,
		Author:     author,
		AuthorName: developers,
		Category:   model.CategorySoftware,
	})
}
