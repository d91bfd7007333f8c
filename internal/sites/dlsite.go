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

var dlsiteRe = regexp.MustCompile(`(?:^|[^A-Za-z0-9])(RJ\d+)`)

// Work-type tags from the 作品形式 outline row, keyed by category.
var (
	dlsiteSoftTags  = []string{"ゲーム", "ツール/アクセサリ"}
	dlsiteImageTags = []string{"マンガ", "CG・イラスト"}
	dlsiteTextTags  = []string{"ノベル", "official/商業誌", "官能小説"}
	dlsiteVideoTags = []string{"動画"}
	dlsiteAudioTags = []string{"ボイス・ASMR", "音楽"}
)

type dlsite struct {
	env     *Env
	baseURL string
}

func newDlsite(env *Env) *dlsite {
	return &dlsite{env: env, baseURL: "https://www.dlsite.com"}
}

func (s *dlsite) source() Source {
	return Source{
		Name:      "dlsite",
		RateLimit: 100 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *dlsite) match(_ context.Context, input string) (string, bool) {
	if !strings.Contains(input, "dlsite.com") {
		return "", false
	}
	if m := dlsiteRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

func dlsiteCategory(workTypes []string) model.Category {
	contains := func(tags []string) bool {
		for _, wt := range workTypes {
			for _, tag := range tags {
				if strings.Contains(wt, tag) {
					return true
				}
			}
		}
		return false
	}
	switch {
	case contains(dlsiteSoftTags):
		return model.CategorySoftware
	case contains(dlsiteImageTags):
		return model.CategoryDrawing
	case contains(dlsiteTextTags):
		return model.CategoryArticle
	case contains(dlsiteVideoTags):
		return model.CategoryVideo
	case contains(dlsiteAudioTags):
		return model.CategoryMusic
	}
	return model.CategoryOther
}

func (s *dlsite) extract(ctx context.Context, workID, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/home/work/=/product_id/%s.html", s.baseURL, workID)
	resp, err := s.env.Client.Get(ctx, pageURL, fetch.ViaProxy())
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("dlsiteapierr: %v", err))
	}
	// The all-ages storefront serves an empty body for adult-only works.
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return model.Fail(model.StatusR18, fmt.Sprintf("dlsite work %s is age-restricted", workID))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("dlsiteparsererr: %v", err))
	}

	title := strings.TrimSpace(doc.Find("#work_name").Text())
	if title == "" {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("dlsiteparsererr: no work name for %s", workID))
	}

	var cover string
	var media []string
	doc.Find(".product-slider-data div").Each(func(i int, sel *goquery.Selection) {
		src, ok := sel.Attr("data-src")
		if !ok || src == "" {
			src, _ = sel.Attr("data-thumb")
		}
		if src == "" {
			return
		}
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		if i == 0 {
			cover = src
		}
		media = append(media, src)
	})

	var author, authorName []string
	if makerName := strings.TrimSpace(doc.Find("#work_maker .maker_name a").Text()); makerName != "" {
		authorName = []string{makerName}
	}
	if href, ok := doc.Find("#work_maker .maker_name a").Attr("href"); ok {
		if i := strings.Index(href, "maker_id/"); i >= 0 {
			makerID := strings.TrimSuffix(href[i+len("maker_id/"):], ".html")
			author = []string{"dlsite-author:" + makerID}
		}
	}

	var ptime string
	touhou := false
	restricted := false
	var workTypes []string
	doc.Find("#work_outline tr").Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").Text())
		cell := row.Find("td")
		switch header {
		case "販売日":
			dateStr := strings.TrimSpace(cell.Text())
			if i := strings.Index(dateStr, "日"); i >= 0 {
				dateStr = dateStr[:i+len("日")]
			}
			if parsed, err := s.env.ptimeFromDate("2006年01月02日", dateStr); err == nil {
				ptime = parsed
			}
		case "年齢指定":
			if !strings.Contains(cell.Text(), "全年齢") {
				restricted = true
			}
		case "作品形式":
			cell.Find("a, span").Each(func(_ int, sel *goquery.Selection) {
				if wt := strings.TrimSpace(sel.Text()); wt != "" {
					workTypes = append(workTypes, wt)
				}
			})
		case "ジャンル":
			cell.Find("a").Each(func(_ int, sel *goquery.Selection) {
				if strings.Contains(sel.Text(), "東方Project") {
					touhou = true
				}
			})
		}
	})
	if restricted {
		return model.Fail(model.StatusR18, fmt.Sprintf("dlsite work %s is age-restricted", workID))
	}

	desc := strings.TrimSpace(doc.Find(`div[itemprop="description"]`).Text())

	record := &model.Record{
		Title:      title,
		UID:        uid,
		Cover:      cover,
		Media:      media,
		Desc:       desc,
		PTime:      ptime,
		Author:     author,
		AuthorName: authorName,
		Category:   dlsiteCategory(workTypes),
	}
	if !touhou {
		env := model.OK(record)
		env.Status = model.StatusWarning
		env.Msg = "may not touhou. "
		return env
	}
	return model.OK(record)
}
