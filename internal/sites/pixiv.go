package sites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/htmltext"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
)

var (
	pixivIllustRe = regexp.MustCompile(`pixiv\.net/(?:en/)?(?:artworks/|i/)(\d+)`)
	pixivParamRe  = regexp.MustCompile(`illust_id=(\d+)`)
	pixivNovelRe  = regexp.MustCompile(`pixiv\.net/novel/show\.php\?id=(\d+)`)
)

// Public mobile-app OAuth client identity, required by the app API.
const (
	pixivClientID     = "MOBrBDS8blbauoSck0ZfDbtuzpyT"
	pixivClientSecret = "lsACyCD94FhDUtGTXi3QzcFE2uU1hqtDaKeqrdwj"
)

const pixivTokenKey = "pixiv_access_token"

// pixivAPI holds the app-API plumbing shared by the illust and novel sources.
type pixivAPI struct {
	env     *Env
	authURL string
	apiBase string
}

func newPixivAPI(env *Env) pixivAPI {
	return pixivAPI{
		env:     env,
		authURL: "https://oauth.secure.pixiv.net/auth/token",
		apiBase: "https://app-api.pixiv.net",
	}
}

type pixivAuthReply struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken exchanges the configured refresh token for an access token,
// caching it for half an hour the same way the twitter guest token is kept.
func (p *pixivAPI) accessToken(ctx context.Context) (string, error) {
	if raw, err := p.env.Store.Get(ctx, pixivTokenKey); err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if p.env.Cfg.PixivRefreshToken == "" {
		return "", errors.New("pixiv refresh token not configured")
	}
	var reply pixivAuthReply
	err := p.env.Client.PostForm(ctx, p.authURL, url.Values{
		"client_id":     {pixivClientID},
		"client_secret": {pixivClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {p.env.Cfg.PixivRefreshToken},
	}, &reply, fetch.ViaProxy())
	if err != nil {
		return "", fmt.Errorf("pixiv auth: %w", err)
	}
	if reply.AccessToken == "" {
		return "", errors.New("pixiv auth: empty access token")
	}
	_ = p.env.Store.Set(ctx, pixivTokenKey, []byte(reply.AccessToken), 30*time.Minute)
	return reply.AccessToken, nil
}

type pixivTag struct {
	Name string `json:"name"`
}

type pixivUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type pixivImageURLs struct {
	SquareMedium string `json:"square_medium"`
}

type pixivWork struct {
	Title          string         `json:"title"`
	Caption        string         `json:"caption"`
	CreateDate     string         `json:"create_date"`
	User           pixivUser      `json:"user"`
	Tags           []pixivTag     `json:"tags"`
	ImageURLs      pixivImageURLs `json:"image_urls"`
	MetaSinglePage *struct {
		OriginalImageURL string `json:"original_image_url"`
	} `json:"meta_single_page"`
	MetaPages []struct {
		ImageURLs struct {
			Original string `json:"original"`
		} `json:"image_urls"`
	} `json:"meta_pages"`
}

// tagScan reports whether the work looks on-topic and the first tag from the
// configured exclusion list, if any.
func (p *pixivAPI) tagScan(tags []pixivTag, extraTopicals ...string) (onTopic bool, bad string) {
	topicals := append([]string{"東方"}, extraTopicals...)
	for _, tag := range tags {
		if !onTopic {
			for _, topical := range topicals {
				if strings.Contains(tag.Name, topical) {
					onTopic = true
					break
				}
			}
		}
		if bad == "" {
			for _, b := range p.env.Cfg.PixivBadTags {
				if tag.Name == b {
					bad = tag.Name
					break
				}
			}
		}
		if onTopic && bad != "" {
			break
		}
	}
	return onTopic, bad
}

// freeCover moves a pximg thumbnail onto the hotlink-friendly mirror.
func freeCover(coverURL string) string {
	return strings.Replace(coverURL, "pximg.net", "pixiv.re", 1)
}

// pixivPTime converts the app API's RFC3339 create_date.
func (p *pixivAPI) pixivPTime(createDate string) (string, error) {
	return p.env.ptimeFromLayout(time.RFC3339, createDate)
}

type pixiv struct {
	pixivAPI
}

func newPixiv(env *Env) *pixiv {
	return &pixiv{pixivAPI: newPixivAPI(env)}
}

func (s *pixiv) source() Source {
	return Source{
		Name:      "pixiv",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *pixiv) match(_ context.Context, input string) (string, bool) {
	// The novel grammar also contains "pixiv.net", so it must be excluded here
	// rather than relying on registry order alone.
	if pixivNovelRe.MatchString(input) {
		return "", false
	}
	if m := pixivIllustRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if m := pixivParamRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type pixivIllustReply struct {
	Error  map[string]any `json:"error"`
	Illust *pixivWork     `json:"illust"`
}

func (s *pixiv) extract(ctx context.Context, pid, uid string) model.Envelope {
	token, err := s.accessToken(ctx)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("pixapierr: %v", err))
	}
	var reply pixivIllustReply
	err = s.env.Client.GetJSON(ctx, s.apiBase+"/v1/illust/detail", &reply,
		fetch.WithQuery(url.Values{"illust_id": {pid}}),
		fetch.WithHeaders(map[string]string{"Authorization": "Bearer " + token}),
		fetch.ViaProxy(),
	)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("pixapierr: %v", err))
	}
	if len(reply.Error) > 0 || reply.Illust == nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("pixapierr: %v", reply.Error))
	}
	work := reply.Illust

	var media []string
	if work.MetaSinglePage != nil && work.MetaSinglePage.OriginalImageURL != "" {
		media = []string{work.MetaSinglePage.OriginalImageURL}
	} else {
		for _, page := range work.MetaPages {
			media = append(media, page.ImageURLs.Original)
		}
	}

	onTopic, bad := s.tagScan(work.Tags)
	if bad != "" {
		return model.Fail(model.StatusR18, fmt.Sprintf("bad tag: %s", bad))
	}
	status, msg := model.StatusOK, "ok"
	if !onTopic {
		status, msg = model.StatusWarning, "may not touhou. "
	}

	ptime, err := s.pixivPTime(work.CreateDate)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("pixparsererr: %v", err))
	}
	return model.Envelope{
		Status: status,
		Msg:    msg,
		Data: &model.Record{
			Title:      work.Title,
			UID:        uid,
			Cover:      freeCover(work.ImageURLs.SquareMedium),
			Media:      media,
			Desc:       htmltext.Strip(work.Caption),
			PTime:      ptime,
			Author:     []string{fmt.Sprintf("pixiv-author:%d", work.User.ID)},
			AuthorName: []string{work.User.Name},
			Category:   model.CategoryDrawing,
		},
	}
}

type pixivNovel struct {
	pixivAPI
}

func newPixivNovel(env *Env) *pixivNovel {
	return &pixivNovel{pixivAPI: newPixivAPI(env)}
}

func (s *pixivNovel) source() Source {
	return Source{
		Name:      "pixnovel",
		RateLimit: 200 * time.Millisecond,
		Match:     s.match,
		Extract:   s.extract,
	}
}

func (s *pixivNovel) match(_ context.Context, input string) (string, bool) {
	if m := pixivNovelRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

type pixivNovelReply struct {
	Error map[string]any `json:"error"`
	Novel *pixivWork     `json:"novel"`
}

func (s *pixivNovel) extract(ctx context.Context, pid, uid string) model.Envelope {
	token, err := s.accessToken(ctx)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("pixapierr: %v", err))
	}
	var reply pixivNovelReply
	err = s.env.Client.GetJSON(ctx, s.apiBase+"/v2/novel/detail", &reply,
		fetch.WithQuery(url.Values{"novel_id": {pid}}),
		fetch.WithHeaders(map[string]string{"Authorization": "Bearer " + token}),
		fetch.ViaProxy(),
	)
	if err != nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("pixapierr: %v", err))
	}
	if len(reply.Error) > 0 || reply.Novel == nil {
		return model.Fail(model.StatusAPIErr, fmt.Sprintf("pixapierr: %v", reply.Error))
	}
	work := reply.Novel

	onTopic, bad := s.tagScan(work.Tags, "幻想入り")
	status, msg := model.StatusOK, "ok"
	if !onTopic {
		status, msg = model.StatusWarning, "may not touhou. "
	}
	if bad != "" {
		// Novels with a flagged tag stay visible, unlike illustrations.
		status = model.StatusWarning
		msg += fmt.Sprintf("bad tag: %s", bad)
	}

	ptime, err := s.pixivPTime(work.CreateDate)
	if err != nil {
		return model.Fail(model.StatusParserErr, fmt.Sprintf("pixparsererr: %v", err))
	}
	return model.Envelope{
		Status: status,
		Msg:    msg,
		Data: &model.Record{
			Title:      work.Title,
			UID:        uid,
			Cover:      freeCover(work.ImageURLs.SquareMedium),
			Desc:       htmltext.Strip(work.Caption),
			PTime:      ptime,
			Author:     []string{fmt.Sprintf("pixiv-author:%d", work.User.ID)},
			AuthorName: []string{work.User.Name},
			Category:   model.CategoryArticle,
		},
	}
}
