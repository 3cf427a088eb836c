// Package cache provides the short-lived byte store backing the channel
// archive. Values are opaque JSON blobs; keys are namespaced by channel so
// prefix deletion implements per-channel invalidation.
package cache

import (
	"context"
	"time"
)

type Store interface {
	// Get returns the value for key, or false when absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string)
}
