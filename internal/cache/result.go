package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
	"github.com/seanankenbruck/lab-query/internal/observability"
)

const (
	// DefaultTTL is how long a cached result stays fresh
	DefaultTTL = 30 * time.Second
	// KeyPrefix namespaces result entries in the shared store
	KeyPrefix = "query:"
)

// Key builds the cache key for a canonical statement
func Key(canonical string) string {
	return KeyPrefix + canonical
}

// entry is the stored envelope. Freshness is judged from InsertedAt and TTL
// against the cache clock, independent of the backend's own expiry.
type entry struct {
	Payload    json.RawMessage `json:"payload"`
	InsertedAt time.Time       `json:"inserted_at"`
	TTLMillis  int64           `json:"ttl_ms"`
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.InsertedAt.Add(time.Duration(e.TTLMillis) * time.Millisecond))
}

// Options configures a ResultCache
type Options struct {
	// Primary is the shared store. When nil only the fallback is used.
	Primary    Store
	DefaultTTL time.Duration
	Clock      clockwork.Clock
	Logger     *observability.Logger
}

// ResultCache is a read-through cache of result payloads keyed by canonical
// statement. Any primary store failure degrades to the in-process fallback
// for that operation; callers never see which store served them.
type ResultCache struct {
	primary    Store
	fallback   *MemoryStore
	defaultTTL time.Duration
	clock      clockwork.Clock
	logger     *observability.Logger
}

// NewResultCache creates a result cache with its own fallback store
func NewResultCache(opts Options) *ResultCache {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger("result-cache")
	}
	return &ResultCache{
		primary:    opts.Primary,
		fallback:   NewMemoryStore(opts.DefaultTTL),
		defaultTTL: opts.DefaultTTL,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
}

// DefaultTTLValue returns the TTL applied when Set is called with zero
func (c *ResultCache) DefaultTTLValue() time.Duration {
	return c.defaultTTL
}

// Fallback exposes the in-process store so its cleaner can be started
func (c *ResultCache) Fallback() *MemoryStore {
	return c.fallback
}

// Get returns the payload stored under key if it is still fresh
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.primary != nil {
		data, err := c.primary.Get(ctx, key)
		switch {
		case err == nil:
			if payload, ok := c.decode(ctx, key, data); ok {
				return payload, true
			}
		case errors.Is(err, ErrCacheMiss):
		default:
			c.backendFailure(ctx, apperrors.ErrCodeCacheRead, "get", key, err)
		}
	}

	data, err := c.fallback.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	return c.decode(ctx, key, data)
}

// Set stores payload under key. A ttl of zero uses the default. Failures
// never reach the caller.
func (c *ResultCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(entry{
		Payload:    payload,
		InsertedAt: c.clock.Now().UTC(),
		TTLMillis:  ttl.Milliseconds(),
	})
	if err != nil {
		c.logger.Warn(ctx, "Failed to encode cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}

	if c.primary != nil {
		err := c.primary.Set(ctx, key, data, ttl)
		if err == nil {
			return
		}
		c.backendFailure(ctx, apperrors.ErrCodeCacheWrite, "set", key, err)
	}
	_ = c.fallback.Set(ctx, key, data, ttl)
}

// Invalidate removes key from both stores
func (c *ResultCache) Invalidate(ctx context.Context, key string) {
	if c.primary != nil {
		if err := c.primary.Del(ctx, key); err != nil {
			c.backendFailure(ctx, apperrors.ErrCodeCacheWrite, "del", key, err)
		}
	}
	_ = c.fallback.Del(ctx, key)
}

// GetJSON decodes a fresh payload into dst
func (c *ResultCache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	payload, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		c.logger.Warn(ctx, "Discarding undecodable cache payload", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		c.Invalidate(ctx, key)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key
func (c *ResultCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn(ctx, "Failed to encode cache payload", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	c.Set(ctx, key, payload, ttl)
}

func (c *ResultCache) decode(ctx context.Context, key string, data []byte) ([]byte, bool) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn(ctx, "Discarding malformed cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}
	if e.expired(c.clock.Now()) {
		return nil, false
	}
	return e.Payload, true
}

func (c *ResultCache) backendFailure(ctx context.Context, code apperrors.ErrorCode, op, key string, err error) {
	observability.RecordCacheBackendError(op)
	c.logger.Warn(ctx, "Cache backend failed, using in-process store", map[string]interface{}{
		"operation": op,
		"error":     apperrors.NewCacheError(err, code, key).Error(),
	})
}
