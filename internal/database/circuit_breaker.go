package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/seanankenbruck/lab-query/internal/observability"
)

// CircuitBreakerConfig defines circuit breaker configuration for the executor
type CircuitBreakerConfig struct {
	MaxRequests   uint32        // Max requests allowed in half-open state
	Interval      time.Duration // Window for counting failures
	Timeout       time.Duration // Duration circuit stays open before trying recovery
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig opens after 5 consecutive failures, or a 60%
// failure ratio once at least 3 statements ran in the window.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	logger := observability.NewLogger("executor")
	return CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 || failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(context.Background(), "Circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}
}

// CircuitBreakerExecutor wraps an Executor with circuit breaker protection
type CircuitBreakerExecutor struct {
	executor Executor
	breaker  *gobreaker.CircuitBreaker
}

// NewCircuitBreakerExecutor creates a circuit breaker wrapped executor
func NewCircuitBreakerExecutor(executor Executor, name string, config CircuitBreakerConfig) *CircuitBreakerExecutor {
	settings := gobreaker.Settings{
		Name:          name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   config.ReadyToTrip,
		OnStateChange: config.OnStateChange,
	}

	return &CircuitBreakerExecutor{
		executor: executor,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// Execute runs the statement through the breaker
func (cb *CircuitBreakerExecutor) Execute(ctx context.Context, template string, params map[string]interface{}) ([]Row, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.executor.Execute(ctx, template, params)
	})
	if err != nil {
		return nil, fmt.Errorf("circuit breaker: %w", err)
	}
	return result.([]Row), nil
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreakerExecutor) State() gobreaker.State {
	return cb.breaker.State()
}

// Counts returns the current failure counts
func (cb *CircuitBreakerExecutor) Counts() gobreaker.Counts {
	return cb.breaker.Counts()
}
