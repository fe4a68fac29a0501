package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
	"github.com/seanankenbruck/lab-query/internal/observability"
)

// DefaultMinInterval is the minimum gap between two model calls
const DefaultMinInterval = 1500 * time.Millisecond

// RateLimitedClient enforces a minimum interval between calls. A call that
// arrives before the interval has passed is rejected instead of queued.
type RateLimitedClient struct {
	client   Client
	limiter  *rate.Limiter
	provider string
}

// NewRateLimitedClient wraps client with a one-token bucket refilled every minInterval
func NewRateLimitedClient(client Client, provider string, minInterval time.Duration) *RateLimitedClient {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &RateLimitedClient{
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		provider: provider,
	}
}

// GenerateSQL forwards to the wrapped client when a token is available
func (r *RateLimitedClient) GenerateSQL(ctx context.Context, prompt string) (*Response, error) {
	if !r.limiter.Allow() {
		observability.GetGlobalMetrics().Inc(observability.MetricLLMRateLimited, map[string]string{
			"provider": r.provider,
		})
		return nil, apperrors.NewRateLimitedError("llm")
	}
	return r.client.GenerateSQL(ctx, prompt)
}

// NewClient builds the configured client stack: provider client, circuit
// breaker, then rate limiter. It returns nil when the provider is "none".
func NewClient(cfg Config) (Client, error) {
	var base Client
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderOllama:
		base = NewOllamaClient(cfg)
	case ProviderClaude:
		c, err := NewClaudeClient(cfg)
		if err != nil {
			return nil, err
		}
		base = c
	default:
		return nil, apperrors.NewInvalidInputError("LLM_PROVIDER", "must be one of none, ollama, claude")
	}

	breaker := NewCircuitBreakerClient(base, cfg.Provider, DefaultCircuitBreakerConfig())
	return NewRateLimitedClient(breaker, cfg.Provider, cfg.MinInterval), nil
}

// Pinger is implemented by clients that can check provider reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping forwards to the wrapped client without consuming a token
func (r *RateLimitedClient) Ping(ctx context.Context) error {
	if p, ok := r.client.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
