package resolver

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PatchyVideo/thvote-scraper/internal/cache"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
	"github.com/PatchyVideo/thvote-scraper/internal/sites"
)

func prefixSource(name, prefix string, extract cache.ExtractFunc) sites.Source {
	return sites.Source{
		Name: name,
		Match: func(_ context.Context, input string) (string, bool) {
			if strings.HasPrefix(input, prefix) {
				return strings.TrimPrefix(input, prefix), true
			}
			return "", false
		},
		Extract: extract,
	}
}

func okExtract(title string) cache.ExtractFunc {
	return func(_ context.Context, _, uid string) model.Envelope {
		return model.OK(&model.Record{Title: title, UID: uid})
	}
}

func newTestResolver(t *testing.T, registry []sites.Source) *Resolver {
	t.Helper()
	return New(registry, cache.NewMemory(), cache.DefaultTTLs(), zap.NewNop())
}

func TestResolveFirstMatchWins(t *testing.T) {
	t.Parallel()

	var secondCalled atomic.Int32
	r := newTestResolver(t, []sites.Source{
		prefixSource("alpha", "a:", okExtract("from alpha")),
		prefixSource("beta", "a:", func(_ context.Context, _, uid string) model.Envelope {
			secondCalled.Add(1)
			return model.OK(&model.Record{Title: "from beta", UID: uid})
		}),
	})

	resp := r.Resolve(context.Background(), "a:1")
	require.Equal(t, model.StatusOK, resp.Status)
	require.Equal(t, "from alpha", resp.Data.Title)
	require.Equal(t, "alpha:1", resp.Data.UID)
	require.Zero(t, secondCalled.Load())
}

func TestResolveNoMatch(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, []sites.Source{
		prefixSource("alpha", "a:", okExtract("x")),
	})

	resp := r.Resolve(context.Background(), "unclaimed input")
	require.Equal(t, model.StatusErr, resp.Status)
	require.Equal(t, "no content found", resp.Msg)
	require.Nil(t, resp.Data)
}

func TestResolveFollowsRematch(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, []sites.Source{
		prefixSource("aggregator", "agg:", func(_ context.Context, id, _ string) model.Envelope {
			return model.Envelope{Status: model.StatusRematch, Msg: "direct:" + id}
		}),
		prefixSource("direct", "direct:", okExtract("resolved")),
	})

	resp := r.Resolve(context.Background(), "agg:42")
	require.Equal(t, model.StatusOK, resp.Status)
	require.Equal(t, "direct:42", resp.Data.UID)
}

func TestResolveRematchDepthBounded(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := newTestResolver(t, []sites.Source{
		prefixSource("loop", "loop:", func(_ context.Context, id, _ string) model.Envelope {
			n := calls.Add(1)
			// Vary the target so caching cannot hide the cycle.
			return model.Envelope{Status: model.StatusRematch, Msg: "loop:" + id + string(rune('a'+n%26))}
		}),
	})

	resp := r.Resolve(context.Background(), "loop:x")
	require.Equal(t, model.StatusExcept, resp.Status)
	require.Contains(t, resp.Msg, "rematch depth exceeded")
	require.LessOrEqual(t, calls.Load(), int32(maxRematchDepth+1))
}

func TestResolvePanicBecomesExcept(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, []sites.Source{
		prefixSource("broken", "b:", func(_ context.Context, _, _ string) model.Envelope {
			panic("upstream schema changed")
		}),
	})

	resp := r.Resolve(context.Background(), "b:1")
	require.Equal(t, model.StatusExcept, resp.Status)
	require.Contains(t, resp.Msg, "upstream schema changed")
	require.Nil(t, resp.Data)
}

func TestResolveCachesSuccesses(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := newTestResolver(t, []sites.Source{
		prefixSource("alpha", "a:", func(_ context.Context, _, uid string) model.Envelope {
			calls.Add(1)
			return model.OK(&model.Record{Title: "cached", UID: uid})
		}),
	})

	for i := 0; i < 3; i++ {
		resp := r.Resolve(context.Background(), "a:7")
		require.Equal(t, model.StatusOK, resp.Status)
	}
	require.Equal(t, int32(1), calls.Load())
}
