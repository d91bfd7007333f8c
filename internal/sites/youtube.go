package sites

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var (
	youtubeWatchRe = regexp.MustCompile(`youtube\.com/(?:watch\?(?:.*&)?v=|shorts/)([\w-]{11})`)
	youtubeShortRe = regexp.MustCompile(`youtu\.be/([\w-]{11})`)
)

// Thumbnail preference, best first.
var youtubeThumbOrder = []string{"maxres", "standard", "high", "medium", "default"}

type youtube struct {
	env *Env
	api string
}

func newYoutube(env *Env) *youtube {
	return &youtube{env: env, api: "https://www.googleapis.com/youtube/v3/videos"}
}

func (s *youtube) source() Source {
	return Source{
		Name:    "youtube",
		Match:   s.match,
		Extract: s.extract,
	}
}

func (s *youtube) match(_ context.Context, input string) (string, bool) {
	if m := youtubeWatchRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if m := youtubeShortRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type youtubeThumb struct {
	URL string `json:"url"`
}

type youtubeListReply struct {
	Items []struct {
		Snippet struct {
			Title        string                  `json:"title"`
			Description  string                  `json:"description"`
			PublishedAt  string                  `json:"publishedAt"`
			ChannelID    string                  `json:"channelId"`
			ChannelTitle string                  `json:"channelTitle"`
			Thumbnails   map[string]youtubeThumb `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

func (s *youtube) extract(ctx context.Context, vid, uid string) model.Envelope {
	var reply youtubeListReply
	err := s.env.Client.GetJSON(ctx, s.api, &reply,
		fetch.WithQuery(url.Values{
			"key":  {s.env.Cfg.YoutubeAPIKey},
			"id":   {vid},
			"part": {"snippet"},
		}),
		fetch.ViaProxy(),
	)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("ytbapierr: %v", err))
	}
	if len(reply.Items) == 0 {
		return model.Fail(model.StatusAPIErr, "ytbapierr: no such content")
	}
	snippet := reply.Items[0].Snippet

	var cover string
	for _, res := range youtubeThumbOrder {
		if thumb, ok := snippet.Thumbnails[res]; ok && thumb.URL != "" {
			cover = thumb.URL
			break
		}
	}

	// publishedAt is RFC3339 UTC, e.g. "2022-01-22T05:00:13Z".
	ptime, err := s.env.ptimeFromLayout("2006-01-02T15:04:05Z07:00", snippet.PublishedAt)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("ytbparsererr: %v", err))
	}

	return model.OK(&model.Record{
		Title:      snippet.Title,
		UID:        uid,
		Cover:      cover,
		Desc:       snippet.Description,
		PTime:      ptime,
		Author:     []string{"youtube-author:" + snippet.ChannelID},
		AuthorName: []string{snippet.ChannelTitle},
		Category:   model.CategoryVideo,
	})
}
