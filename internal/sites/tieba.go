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

	"github.com/PatchyVideo/thvote-scraper/internal/htmltext"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var (
	tiebaRe    = regexp.MustCompile(`tieba\.baidu\.com/p/(\d+)`)
	tiebaImgRe = regexp.MustCompile(`<img[^>]*src="(.+?)"[^>]*>`)
)

type tieba struct {
	env     *Env
	baseURL string
}

func newTieba(env *Env) *tieba {
	return &tieba{env: env, baseURL: "https://tieba.baidu.com"}
}

func (s *tieba) source() Source {
	return Source{
		Name:      "tieba",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *tieba) match(_ context.Context, input string) (string, bool) {
	if m := tiebaRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type tiebaPostList struct {
	FirstPost struct {
		Title   string `json:"title"`
		NowTime int64  `json:"now_time"`
		Content string `json:"content"`
	} `json:"firstPost"`
	Thread struct {
		AuthorInfo struct {
			UserID   json.Number `json:"user_id"`
			UserName string      `json:"user_name"`
		} `json:"author_info"`
	} `json:"thread"`
}

func (s *tieba) extract(ctx context.Context, wid, uid string) model.Envelope {
	pageURL := fmt.Sprintf("%s/p/%s", s.baseURL, wid)
	resp, err := s.env.Client.Get(ctx, pageURL)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("tiebaapierr: %v", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("tiebaparsererr: %v", err))
	}

	// The thread payload is passed to a widget loader:
	// _.Module.use('pb/widget/postList', [{...}], ...). The literal uses
	// single quotes and trailing commas, so it needs repair before decoding.
	var script string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if text := sel.Text(); strings.Contains(text, "pb/widget/postList") {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("tiebaparsererr: no post list for %s", wid))
	}
	start := strings.Index(script, "pb/widget/postList")
	seg := script[start:]
	start = strings.Index(seg, "[")
	if start < 0 {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("tiebaparsererr: no post payload for %s", wid))
	}
	seg = strings.ReplaceAll(seg[start:], "'", `"`)
	seg = strings.ReplaceAll(seg, "}, }", "}}")
	seg = strings.ReplaceAll(seg, "},}", "}}")

	var posts []tiebaPostList
	if err := json.NewDecoder(strings.NewReader(seg)).Decode(&posts); err != nil || len(posts) == 0 {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("tiebaparsererr: post payload decode failed for %s", wid))
	}
	post := posts[0]

	content := post.FirstPost.Content
	var cover string
	if m := tiebaImgRe.FindStringSubmatch(content); m != nil {
		cover = m[1]
		content = strings.Replace(content, m[0], "", 1)
	}
	desc := htmltext.Strip(content)

	return model.OK(&model.Record{
		Title:      post.FirstPost.Title,
		UID:        uid,
		Cover:      cover,
		Desc:       desc,
		PTime:      s.env.ptimeFromUnix(post.FirstPost.NowTime),
		Author:     []string{"tieba-author:" + post.Thread.AuthorInfo.UserID.String()},
		AuthorName: []string{post.Thread.AuthorInfo.UserName},
		Category:   model.CategoryOther,
	})
}
