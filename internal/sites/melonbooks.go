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

var melonRe = regexp.MustCompile(`melonbooks\.co\.jp/detail/detail\.php\?product_id=(\d+)`)

type melonBooks struct {
	env     *Env
	baseURL string
}

func newMelonBooks(env *Env) *melonBooks {
	host := env.Cfg.MelonHost
	if host == "" {
		host = "www.melonbooks.co.jp"
	}
	return &melonBooks{env: env, baseURL: "https://" + host}
}

func (s *melonBooks) source() Source {
	return Source{
		Name:      "melonbooks",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *melonBooks) match(_ context.Context, input string) (string, bool) {
	if m := melonRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

func (s *melonBooks) extract(ctx context.Context, productID, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/detail/detail.php?product_id=%s", s.baseURL, productID)
	resp, err := s.env.Client.Get(ctx, pageURL,
		fetch.ViaProxy(),
		fetch.WithCookies(map[string]string{"AUTH_ADULT": "0"}),
	)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("melonapierr: %v", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("melonparsererr: %v", err))
	}

	title := strings.TrimSpace(doc.Find("head title").Text())
	if strings.Contains(title, "年齢認証") {
		return model.Fail(model.StatusR18, fmt.Sprintf("melonbooks item %s is age-restricted", productID))
	}
	if i := strings.Index(title, "の通販・購入"); i >= 0 {
		title = title[:i]
	}
	if title == "" {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("melonparsererr: no title for %s", productID))
	}

	cover, _ := doc.Find(`head meta[property="og:image"]`).Attr("content")
	desc, _ := doc.Find(`head meta[property="og:description"]`).Attr("content")

	var media []string
	doc.Find("#thumbs a").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			if strings.HasPrefix(href, "//") {
				href = "https:" + href
			}
			media = append(media, href)
		}
	})

	var author, authorName []string
	circle := doc.Find(`a[href*="circle_id"]`).First()
	if name := strings.TrimSpace(circle.Text()); name != "" {
		authorName = []string{name}
		if href, ok := circle.Attr("href"); ok {
			if i := strings.Index(href, "circle_id="); i >= 0 {
				author = []string{"melonbooks-author:" + href[i+len("circle_id="):]}
			}
		}
	}

	var ptime string
	doc.Find(".table-wrapper tr, table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if !strings.Contains(row.Find("th").Text(), "発行日") {
			return true
		}
		dateStr := strings.TrimSpace(row.Find("td").Text())
		if parsed, err := s.env.ptimeFromDate("2006年1月2日", dateStr); err == nil {
			ptime = parsed
		}
		return false
	})

	return model.OK(&model.Record{
		Title:      title,
		UID:        uid,
		Cover:      cover,
		Media:      media,
		Desc:       desc,
		PTime:      ptime,
		Author:     author,
		AuthorName: authorName,
		Category:   model.CategoryOther,
	})
}
