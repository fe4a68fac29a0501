package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"rate limit status", &APIError{Provider: "claude", StatusCode: 429, Message: "slow down"}, true},
		{"500 status", &APIError{Provider: "ollama", StatusCode: 500, Message: "model crashed"}, true},
		{"503 status wrapped", fmt.Errorf("send: %w", &APIError{StatusCode: 503}), true},
		{"401 status", &APIError{StatusCode: 401, Message: "invalid x-api-key"}, false},
		{"400 status", &APIError{StatusCode: 400, Message: "bad request"}, false},
		{"404 model not found", &APIError{StatusCode: 404, Message: "model not found"}, false},
		{"deadline exceeded", fmt.Errorf("HTTP request failed: %w", context.DeadlineExceeded), true},
		{"cancelled", fmt.Errorf("HTTP request failed: %w", context.Canceled), false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"unknown", errors.New("something else"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableError(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	baseDelay := 100 * time.Millisecond
	maxDelay := 5 * time.Second

	tests := []struct {
		name        string
		attempt     int
		expectedMin time.Duration
		expectedMax time.Duration
	}{
		{"first retry", 0, 50 * time.Millisecond, 150 * time.Millisecond},
		{"second retry", 1, 100 * time.Millisecond, 300 * time.Millisecond},
		{"third retry", 2, 200 * time.Millisecond, 600 * time.Millisecond},
		{"capped at max delay", 10, 2500 * time.Millisecond, 7500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				delay := calculateBackoff(tt.attempt, baseDelay, maxDelay)
				assert.GreaterOrEqual(t, delay, tt.expectedMin)
				assert.LessOrEqual(t, delay, tt.expectedMax)
			}
		})
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := withRetry(context.Background(), fastRetry(), func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &APIError{StatusCode: 503}
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), fastRetry(), func(ctx context.Context) (string, error) {
			calls++
			return "", &APIError{StatusCode: 401}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), fastRetry(), func(ctx context.Context) (string, error) {
			calls++
			return "", &APIError{StatusCode: 500}
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries (3) exceeded")
		assert.Equal(t, 4, calls)
	})

	t.Run("respects cancellation while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
		_, err := withRetry(ctx, cfg, func(ctx context.Context) (string, error) {
			cancel()
			return "", &APIError{StatusCode: 503}
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDefaultRetryConfig(t *testing.T) {
	assert.Equal(t, 3, DefaultRetryConfig.MaxRetries)
	assert.Equal(t, 800*time.Millisecond, DefaultRetryConfig.BaseDelay)
	assert.Equal(t, 5*time.Second, DefaultRetryConfig.MaxDelay)
}
