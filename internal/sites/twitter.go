package sites

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var twitterRe = regexp.MustCompile(`(?:https://)?(?:www\.|mobile\.)?(?:twitter|x)\.com/\w+/status/(\d+)`)

// Twitter timestamps look like "Sun Feb 06 20:14:46 +0000 2022".
const twitterTimeLayout = "Mon Jan 02 15:04:05 -0700 2006"

const twitterGuestTokenKey = "twiapi_token"

type twitter struct {
	env     *Env
	apiBase string
}

func newTwitter(env *Env) *twitter {
	return &twitter{env: env, apiBase: "https://api.twitter.com"}
}

func (s *twitter) source() Source {
	return Source{
		Name:    "twitter",
		Match:   s.match,
		Extract: s.extract,
	}
}

func (s *twitter) match(_ context.Context, input string) (string, bool) {
	if m := twitterRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type twitterActivateReply struct {
	GuestToken string `json:"guest_token"`
}

// guestToken activates an anonymous API session, cached for 30 minutes.
func (s *twitter) guestToken(ctx context.Context) (string, error) {
	if raw, err := s.env.Store.Get(ctx, twitterGuestTokenKey); err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if s.env.Cfg.TwitterAuth == "" {
		return "", errors.New("twitter auth not configured")
	}
	var reply twitterActivateReply
	err := s.env.Client.PostJSON(ctx, s.apiBase+"/1.1/guest/activate.json", nil, &reply,
		fetch.WithHeaders(map[string]string{"Authorization": s.env.Cfg.TwitterAuth}),
		fetch.ViaProxy(),
	)
	if err != nil {
		return "", fmt.Errorf("guest activate: %w", err)
	}
	if reply.GuestToken == "" {
		return "", errors.New("guest activate: empty token")
	}
	_ = s.env.Store.Set(ctx, twitterGuestTokenKey, []byte(reply.GuestToken), 30*time.Minute)
	return reply.GuestToken, nil
}

type twitterStatusReply struct {
	Errors    []map[string]any `json:"errors"`
	CreatedAt string           `json:"created_at"`
	FullText  string           `json:"full_text"`
	User      struct {
		IDStr string `json:"id_str"`
		Name  string `json:"name"`
	} `json:"user"`
	Entities struct {
		Media []struct {
			MediaURLHTTPS string `json:"media_url_https"`
		} `json:"media"`
	} `json:"entities"`
}

func (s *twitter) extract(ctx context.Context, tid, uid string) model.Envelope {
	token, err := s.guestToken(ctx)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("twiapierr: %v", err))
	}
	api := fmt.Sprintf("%s/1.1/statuses/show.json?id=%s&tweet_mode=extended&include_entities=true", s.apiBase, tid)
	var reply twitterStatusReply
	err = s.env.Client.GetJSON(ctx, api, &reply,
		fetch.WithHeaders(map[string]string{
			"Authorization": s.env.Cfg.TwitterAuth,
			"x-guest-token": token,
		}),
		fetch.ViaProxy(),
	)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("twiapierr: %v", err))
	}
	if len(reply.Errors) > 0 {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("twiapierr: %v", reply.Errors))
	}

	ptime, err := s.env.ptimeFromLayout(twitterTimeLayout, reply.CreatedAt)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("twiparsererr: %v", err))
	}

	var cover string
	var media []string
	for _, m := range reply.Entities.Media {
		media = append(media, m.MediaURLHTTPS)
	}
	if len(media) > 0 {
		cover = media[0]
	}

	return model.OK(&model.Record{
		Title:      fmt.Sprintf("%s的推文", reply.User.Name),
		UID:        uid,
		Cover:      cover,
		Media:      media,
		Desc:       reply.FullText,
		PTime:      ptime,
		Author:     []string{"twitter-author:" + reply.User.IDStr},
		AuthorName: []string{reply.User.Name},
	})
}
