// internal/auth/ratelimit.go
package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL      = 10 * time.Minute
	limiterCleanupEvery = 5 * time.Minute
)

// clientLimiter tracks a token bucket for a single client
type clientLimiter struct {
	limiter   *rate.Limiter
	perMinute int
	lastSeen  time.Time
}

// RateLimiter enforces a per-client token bucket. A client limited to n
// requests per minute refills at n/60 tokens per second with a burst of n.
type RateLimiter struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	now     func() time.Time
}

// NewRateLimiter creates an empty limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow reports whether clientID may make one more request under limitPerMinute.
// A non-positive limit disables limiting for the client.
func (rl *RateLimiter) Allow(clientID string, limitPerMinute int) bool {
	if limitPerMinute <= 0 {
		return true
	}

	rl.mu.Lock()
	now := rl.now()
	cl, ok := rl.clients[clientID]
	if !ok || cl.perMinute != limitPerMinute {
		cl = &clientLimiter{
			limiter:   rate.NewLimiter(rate.Limit(float64(limitPerMinute)/60.0), limitPerMinute),
			perMinute: limitPerMinute,
		}
		rl.clients[clientID] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Cleanup drops clients idle for longer than the idle TTL and returns how many were removed
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	removed := 0
	for id, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// Run performs periodic cleanup until ctx is cancelled
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// GetStats returns rate limiting statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	clientStats := make([]map[string]interface{}, 0, len(rl.clients))
	for id, cl := range rl.clients {
		clientStats = append(clientStats, map[string]interface{}{
			"client_id":        id,
			"limit_per_minute": cl.perMinute,
			"tokens":           cl.limiter.TokensAt(now),
			"last_request":     cl.lastSeen,
		})
	}

	return map[string]interface{}{
		"total_clients": len(rl.clients),
		"clients":       clientStats,
	}
}
