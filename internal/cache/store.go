// Package cache provides the TTL key-value store behind resolution results
// and the caching/rate-gating wrapper applied to every source extractor.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a TTL-capable key-value store. Values are opaque serialized blobs.
// Get and Set are atomic per key; compound read-then-write sequences (the
// rate gate) are not, which is an accepted benign race.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes the value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
