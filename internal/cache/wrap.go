package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PatchyVideo/thvote-scraper/internal/model"
	"github.com/PatchyVideo/thvote-scraper/internal/telemetry"
)

// ExtractFunc turns a source-native identifier into a response envelope.
type ExtractFunc func(ctx context.Context, nativeID, uid string) model.Envelope

// ResolveFunc is an ExtractFunc with caching and rate gating applied; the uid
// is derived from the source name and native id.
type ResolveFunc func(ctx context.Context, nativeID string) model.Envelope

// TTLs control how long results stay cached.
type TTLs struct {
	// Success applies to ok/warning envelopes. Zero means no expiry.
	Success time.Duration
	// Failure applies to everything else, kept short so a broken upstream is
	// shielded from retry storms but recovers on its own.
	Failure time.Duration
}

// DefaultTTLs matches the documented protocol: successes are kept until
// explicitly invalidated, failures for a minute.
func DefaultTTLs() TTLs {
	return TTLs{Success: 0, Failure: time.Minute}
}

// Wrap decorates an extractor with the per-source cache protocol:
//
//  1. A hit on "<source>:<native-id>" returns immediately, before any rate
//     limit logic runs.
//  2. On a miss, the wrapper waits until at least limit has elapsed since the
//     source's last recorded request ("<source>_limit"), then invokes fn and
//     refreshes the gate stamp whether or not fn succeeded.
//  3. Successful results get their cover scheme upgraded to https and are
//     cached with the long TTL; failures with the short one.
//
// There is no per-uid mutual exclusion: two concurrent misses for the same
// uid may both reach the upstream. The cost is one redundant request, and the
// later write simply overwrites an equivalent entry.
func Wrap(store Store, source string, limit time.Duration, ttls TTLs, fn ExtractFunc, logger *zap.Logger) ResolveFunc {
	gateKey := source + "_limit"

	return func(ctx context.Context, nativeID string) model.Envelope {
		uid := source + ":" + nativeID

		if raw, err := store.Get(ctx, uid); err == nil {
			var cached model.Envelope
			if err := json.Unmarshal(raw, &cached); err == nil {
				telemetry.ObserveCacheHit(source)
				return cached
			}
			// Unreadable entry: drop it and fall through to a fresh fetch.
			logger.Warn("discarding corrupt cache entry", zap.String("uid", uid))
			_ = store.Delete(ctx, uid)
		} else if !errors.Is(err, ErrMiss) {
			logger.Warn("cache read failed", zap.String("uid", uid), zap.Error(err))
		}

		if limit > 0 {
			waitForGate(ctx, store, gateKey, limit, source)
		}

		resp := fn(ctx, nativeID, uid)

		stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
		if err := store.Set(ctx, gateKey, []byte(stamp), 0); err != nil {
			logger.Warn("gate stamp write failed", zap.String("source", source), zap.Error(err))
		}

		ttl := ttls.Failure
		if resp.Succeeded() {
			ttl = ttls.Success
			if resp.Data != nil {
				resp.Data.Cover = secureScheme(resp.Data.Cover)
			}
		}
		if raw, err := json.Marshal(resp); err == nil {
			if err := store.Set(ctx, uid, raw, ttl); err != nil {
				logger.Warn("cache write failed", zap.String("uid", uid), zap.Error(err))
			}
		}
		return resp
	}
}

// waitForGate sleeps until limit has elapsed since the stored stamp. The
// stamp is re-read after each sleep because another resolution may have
// refreshed it meanwhile. Missing or unreadable stamps let the request
// through immediately.
func waitForGate(ctx context.Context, store Store, gateKey string, limit time.Duration, source string) {
	start := time.Now()
	for {
		raw, err := store.Get(ctx, gateKey)
		if err != nil {
			break
		}
		nanos, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			break
		}
		wait := limit - time.Since(time.Unix(0, nanos))
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveGateDelay(source, waited)
	}
}

// secureScheme rewrites a cover URL onto https. Protocol-relative URLs get
// an explicit scheme as well.
func secureScheme(cover string) string {
	switch {
	case strings.HasPrefix(cover, "http://"):
		return "https://" + strings.TrimPrefix(cover, "http://")
	case strings.HasPrefix(cover, "//"):
		return "https:" + cover
	default:
		return cover
	}
}
