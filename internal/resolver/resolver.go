// Package resolver dispatches an input URL to the first source whose matcher
// claims it and returns the normalized envelope, following rematch
// indirections when an aggregator points at a platform we extract directly.
package resolver

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/PatchyVideo/thvote-scraper/internal/cache"
	"github.com/PatchyVideo/thvote-scraper/internal/model"
	"github.com/PatchyVideo/thvote-scraper/internal/sites"
	"github.com/PatchyVideo/thvote-scraper/internal/telemetry"
)

// maxRematchDepth bounds aggregator indirection. Two well-formed hops
// (aggregator -> platform) are the realistic maximum; anything deeper is a
// cycle or hostile input.
const maxRematchDepth = 5

type entry struct {
	name    string
	match   sites.MatchFunc
	resolve cache.ResolveFunc
}

// Resolver routes inputs through an ordered source table.
type Resolver struct {
	entries []entry
	logger  *zap.Logger
}

// New wires each registered source's extractor with the cache protocol and
// returns the ready dispatcher. Registry order becomes dispatch order.
func New(registry []sites.Source, store cache.Store, ttls cache.TTLs, logger *zap.Logger) *Resolver {
	entries := make([]entry, 0, len(registry))
	for _, src := range registry {
		entries = append(entries, entry{
			name:    src.Name,
			match:   src.Match,
			resolve: cache.Wrap(store, src.Name, src.RateLimit, ttls, src.Extract, logger),
		})
	}
	return &Resolver{entries: entries, logger: logger}
}

// Resolve finds the first source claiming the input and runs its extractor.
// A rematch result restarts dispatch with the envelope's message as the new
// input. Panics inside a matcher or extractor are reported as an except
// envelope rather than taking the request down.
func (r *Resolver) Resolve(ctx context.Context, input string) (resp model.Envelope) {
	ctx, span := telemetry.Tracer().Start(ctx, "resolve")
	defer func() {
		span.SetAttributes(attribute.String("resolution.status", resp.Status))
		span.End()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("resolution panicked", zap.String("input", input), zap.Any("panic", rec))
			resp = model.Fail(model.StatusExcept, fmt.Sprintf("exception: %v", rec))
			telemetry.ObserveResolution("none", resp.Status)
		}
	}()
	return r.resolve(ctx, input, 0)
}

func (r *Resolver) resolve(ctx context.Context, input string, depth int) model.Envelope {
	if depth > maxRematchDepth {
		telemetry.ObserveResolution("none", model.StatusExcept)
		return model.Fail(model.StatusExcept, fmt.Sprintf("rematch depth exceeded for %s", input))
	}
	for _, e := range r.entries {
		nativeID, ok := e.match(ctx, input)
		if !ok {
			continue
		}
		r.logger.Debug("source matched",
			zap.String("source", e.name),
			zap.String("id", nativeID),
			zap.Int("depth", depth))
		resp := e.resolve(ctx, nativeID)
		if resp.Status == model.StatusRematch {
			return r.resolve(ctx, resp.Msg, depth+1)
		}
		telemetry.ObserveResolution(e.name, resp.Status)
		return resp
	}
	telemetry.ObserveResolution("none", model.StatusErr)
	return model.Fail(model.StatusErr, "no content found")
}
