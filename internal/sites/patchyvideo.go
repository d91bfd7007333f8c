package sites

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var patchyVideoRe = regexp.MustCompile(`patchyvideo\.com/(?:#/)?video\?id=([A-Za-z0-9]+)`)

// Sites with a direct matcher/extractor pair; entries re-hosted from them are
// bounced back to the dispatcher via rematch instead of being served from the
// aggregator's copy of the metadata.
var patchyDirectSites = map[string]struct{}{
	"bilibili":  {},
	"nicovideo": {},
	"youtube":   {},
	"twitter":   {},
	"acfun":     {},
	"weibo":     {},
}

const patchyGQL = `
query ($vid: String!) {
  getVideo(para: { vid: $vid, lang: "CHS" }) {
    item {
      title
      site
      url
      coverImage
      desc
      repostType
      uploadTime
    }
    tagByCategory(lang: "CHS") {
      key
      value
    }
  }
}
`

type patchyVideo struct {
	env *Env
	api string
}

func newPatchyVideo(env *Env) *patchyVideo {
	return &patchyVideo{env: env, api: "https://patchyvideo.com/graphql"}
}

func (s *patchyVideo) source() Source {
	return Source{
		Name:    "patchyvideo",
		Match:   s.match,
		Extract: s.extract,
	}
}

func (s *patchyVideo) match(_ context.Context, input string) (string, bool) {
	if m := patchyVideoRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type patchyReply struct {
	Errors []map[string]any `json:"errors"`
	Data   *struct {
		GetVideo struct {
			Item struct {
				Title      string `json:"title"`
				Site       string `json:"site"`
				URL        string `json:"url"`
				CoverImage string `json:"coverImage"`
				Desc       string `json:"desc"`
				RepostType string `json:"repostType"`
				UploadTime string `json:"uploadTime"`
			} `json:"item"`
			TagByCategory []struct {
				Key   string   `json:"key"`
				Value []string `json:"value"`
			} `json:"tagByCategory"`
		} `json:"getVideo"`
	} `json:"data"`
}

func (s *patchyVideo) extract(ctx context.Context, vid, uid string) model.Envelope {
	var reply patchyReply
	err := s.env.Client.PostJSON(ctx, s.api, map[string]any{
		"query":     patchyGQL,
		"variables": map[string]string{"vid": vid},
	}, &reply, fetch.ViaProxy())
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("patchyapierr: %v", err))
	}
	if reply.Data == nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("patchyapierr: %v", reply.Errors))
	}
	item := reply.Data.GetVideo.Item

	if _, direct := patchyDirectSites[item.Site]; direct {
		return model.Fail(model.StatusRematch, item.URL)
	}

	var authors []string
	for _, tag := range reply.Data.GetVideo.TagByCategory {
		if tag.Key == "AUTHOR" {
			authors = tag.Value
			break
		}
	}

	// e.g. "2022-02-14T13:20:28+00:00"
	ptime, err := s.env.ptimeFromLayout(time.RFC3339, item.UploadTime)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("patchyparsererr: %v", err))
	}

	return model.OK(&model.Record{
		Title:      item.Title,
		UID:        uid,
		Cover:      item.CoverImage,
		Desc:       item.Desc,
		PTime:      ptime,
		AuthorName: authors,
		Category:   model.CategoryVideo,
		Repost:     model.Bool(item.RepostType != "original"),
	})
}
