package sites

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var thbEntryRe = regexp.MustCompile(`thwiki\.cc/([^?#\s]+)`)

// thbWiki resolves THBWiki entries through the Semantic MediaWiki ask API.
// Entry titles are free text: they arrive percent-encoded in URLs and must be
// decoded before they can be used as identifiers, and the wiki may canonicalize
// them further (redirects), so the extractor rewrites the uid to the resolved
// title.
type thbWiki struct {
	env *Env
	api string
}

func newTHBWiki(env *Env) *thbWiki {
	return &thbWiki{env: env, api: "https://thwiki.cc/api.php"}
}

func (s *thbWiki) source() Source {
	return Source{
		Name:    "thbwiki",
		Match:   s.match,
		Extract: s.extract,
	}
}

// match pulls the entry title out of a wiki URL. Short links ("/-/xxxx")
// redirect to the real entry and are resolved here, the one network call a
// matcher may make.
func (s *thbWiki) match(ctx context.Context, input string) (string, bool) {
	m := thbEntryRe.FindStringSubmatch(input)
	if m == nil {
		return "", false
	}
	entry := m[1]
	if len(entry) > 2 && entry[:2] == "-/" {
		target, err := s.env.Client.RedirectLocation(ctx, "https://thwiki.cc/"+entry)
		if err != nil {
			s.env.Logger.Warn("thbwiki short link resolution failed", zap.String("entry", entry), zap.Error(err))
			return "", false
		}
		if m = thbEntryRe.FindStringSubmatch(target); m == nil {
			return "", false
		}
		entry = m[1]
	}
	if decoded, err := url.PathUnescape(entry); err == nil {
		entry = decoded
	}
	return entry, true
}

type thbPrintoutPage struct {
	Fulltext string `json:"fulltext"`
	Fullurl  string `json:"fullurl"`
}

type thbPrintoutDate struct {
	Timestamp string `json:"timestamp"`
}

type thbResult struct {
	Fulltext  string `json:"fulltext"`
	Printouts struct {
		Cover       []thbPrintoutPage `json:"封面图片"`
		ReleaseDate []thbPrintoutDate `json:"发售日期"`
		Producer    []thbPrintoutPage `json:"制作方"`
	} `json:"printouts"`
}

type thbAskReply struct {
	Query struct {
		Results map[string]thbResult `json:"results"`
	} `json:"query"`
}

func (s *thbWiki) extract(ctx context.Context, entry, _ string) model.Envelope {
	var reply thbAskReply
	err := s.env.Client.PostForm(ctx, s.api, url.Values{
		"action":        {"ask"},
		"format":        {"json"},
		"formatversion": {"2"},
		"query":         {fmt.Sprintf("[[%s]]|?封面图片|?发售日期|?制作方", entry)},
	}, &reply, fetch.ViaProxy())
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("thbapierr: %v", err))
	}
	if len(reply.Query.Results) == 0 {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("thbapierr: no result for %q", entry))
	}

	var result thbResult
	for _, r := range reply.Query.Results {
		result = r
		break
	}

	record := &model.Record{
		Title: result.Fulltext,
		// Canonical identity follows the resolved entry title, not the input.
		UID:      "thbwiki:" + result.Fulltext,
		Category: model.CategoryMusic,
	}
	if len(result.Printouts.Cover) > 0 {
		record.Cover = result.Printouts.Cover[0].Fullurl
	}
	if len(result.Printouts.ReleaseDate) > 0 {
		if sec, err := strconv.ParseInt(result.Printouts.ReleaseDate[0].Timestamp, 10, 64); err == nil {
			record.PTime = s.env.ptimeFromUnix(sec)
		}
	}
	if len(result.Printouts.Producer) > 0 {
		producer := result.Printouts.Producer[0].Fulltext
		record.Author = []string{"thbwiki-author:" + producer}
		record.AuthorName = []string{producer}
	}
	return model.OK(record)
}
