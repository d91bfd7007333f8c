// Package sites holds one matcher/extractor pair per supported platform.
// Matchers recognize a source's URL grammar and pull out the native content
// id; extractors turn that id into the normalized record, absorbing each
// platform's schema, taxonomy and timezone quirks.
package sites

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PatchyVideo/thvote-scraper/internal/cache"
	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
)

// MatchFunc tests the input against one source's URL grammar and returns the
// native id. A false return means "not this source, try the next one" and is
// never an error. Resolving a shortened link is the one network call a
// matcher is allowed to make.
type MatchFunc func(ctx context.Context, input string) (string, bool)

// Source pairs a matcher with its extractor. Registry order is the dispatch
// priority order.
type Source struct {
	Name      string
	RateLimit time.Duration
	Match     MatchFunc
	Extract   cache.ExtractFunc
}

// Config carries per-source credentials and tunables.
type Config struct {
	YoutubeAPIKey     string
	TwitterAuth       string // "Bearer ..." used for guest token activation
	PixivRefreshToken string
	PixivBadTags      []string
	MelonHost         string // melonbooks storefront host (mirror-friendly)
	BiliSessData      string // optional bilibili session cookie
	Timezone          string // target civil timezone for ptime normalization
}

// Env bundles the collaborators every extractor needs.
type Env struct {
	Client *fetch.Client
	Store  cache.Store // short-lived upstream tokens (guest/access tokens)
	Cfg    Config
	Logger *zap.Logger
	Loc    *time.Location
}

// NewEnv resolves the target timezone and returns a ready environment.
func NewEnv(client *fetch.Client, store cache.Store, cfg Config, logger *zap.Logger) *Env {
	name := cfg.Timezone
	if name == "" {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("timezone load failed, using fixed +0800", zap.String("tz", name), zap.Error(err))
		loc = time.FixedZone("CST", 8*60*60)
	}
	return &Env{Client: client, Store: store, Cfg: cfg, Logger: logger, Loc: loc}
}

// Registry returns all sources in dispatch priority order. The order is part
// of the contract: the first matcher to claim an input wins.
func Registry(env *Env) []Source {
	return []Source{
		newBiliArticle(env).source(),
		newBilibili(env).source(),
		newPixiv(env).source(),
		newPixivNovel(env).source(),
		newTwitter(env).source(),
		newYoutube(env).source(),
		newAcfunArticle(env).source(),
		newAcfun(env).source(),
		newNicoSeiga(env).source(),
		newNicoVideo(env).source(),
		newTHBWiki(env).source(),
		newPatchyVideo(env).source(),
		newWeibo(env).source(),
		newTieba(env).source(),
		newDizzylab(env).source(),
		newSteam(env).source(),
		newDlsite(env).source(),
		newMelonBooks(env).source(),
	}
}
