// Package cache implements the read-through result cache used by the query
// processor: a shared redis store with an in-process fallback.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by a Store when the key does not exist
var ErrCacheMiss = errors.New("cache: miss")

// Store is a byte-oriented key/value backend with per-key expiry
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
