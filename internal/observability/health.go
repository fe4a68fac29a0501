package observability

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ServiceName and ServiceVersion are reported by the health endpoint
const (
	ServiceName    = "lab-query"
	ServiceVersion = "1.0.0"
)

// HealthCheck represents a health check for a component
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	DurationMs  int64                  `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthCheckFunc is a function that performs a health check
type HealthCheckFunc func(context.Context) *HealthCheck

// HealthChecker performs health checks on dependencies and caches each
// result for a short TTL.
type HealthChecker struct {
	checks map[string]HealthCheckFunc
	cache  map[string]*HealthCheck
	mu     sync.Mutex
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return NewHealthCheckerWithClock(clockwork.NewRealClock())
}

// NewHealthCheckerWithClock creates a health checker driven by the given clock
func NewHealthCheckerWithClock(clock clockwork.Clock) *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheckFunc),
		cache:  make(map[string]*HealthCheck),
		ttl:    5 * time.Second,
		clock:  clock,
	}
}

// Register registers a health check
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
	delete(hc.cache, name)
}

// Check performs all health checks, reusing results younger than the TTL
func (hc *HealthChecker) Check(ctx context.Context) map[string]*HealthCheck {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	results := make(map[string]*HealthCheck, len(hc.checks))
	now := hc.clock.Now()

	for name, checkFunc := range hc.checks {
		if cached, exists := hc.cache[name]; exists && now.Sub(cached.LastChecked) < hc.ttl {
			results[name] = cached
			continue
		}

		result := checkFunc(ctx)
		if result.Name == "" {
			result.Name = name
		}
		result.LastChecked = hc.clock.Now()
		hc.cache[name] = result
		results[name] = result
	}

	return results
}

// OverallStatus folds a set of check results into one status
func OverallStatus(checks map[string]*HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, check := range checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus            `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*HealthCheck `json:"checks"`
	Metadata  map[string]interface{}  `json:"metadata,omitempty"`
}

// GetHealthResponse returns a complete health response
func (hc *HealthChecker) GetHealthResponse(ctx context.Context) *HealthResponse {
	checks := hc.Check(ctx)

	return &HealthResponse{
		Status:    OverallStatus(checks),
		Timestamp: hc.clock.Now(),
		Checks:    checks,
		Metadata: map[string]interface{}{
			"version": ServiceVersion,
			"service": ServiceName,
		},
	}
}

// dependencyCheck pings a dependency and reports failStatus when the ping fails
func dependencyCheck(name, label string, timeout time.Duration, failStatus HealthStatus, ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		start := time.Now()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := ping(ctx)
		duration := time.Since(start)

		if err != nil {
			return &HealthCheck{
				Name:       name,
				Status:     failStatus,
				Message:    fmt.Sprintf("%s unavailable: %v", label, err),
				DurationMs: duration.Milliseconds(),
			}
		}

		return &HealthCheck{
			Name:       name,
			Status:     HealthStatusHealthy,
			Message:    fmt.Sprintf("%s available", label),
			DurationMs: duration.Milliseconds(),
		}
	}
}

// DatabaseHealthCheck reports the database as unhealthy when it cannot be pinged
func DatabaseHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return dependencyCheck("database", "Database", 2*time.Second, HealthStatusUnhealthy, ping)
}

// RedisHealthCheck reports redis as degraded on failure; the result cache
// keeps serving from its in-process fallback.
func RedisHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return dependencyCheck("redis", "Redis", 2*time.Second, HealthStatusDegraded, ping)
}

// LLMHealthCheck reports the LLM as degraded on failure; rule-based questions still work.
func LLMHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return dependencyCheck("llm", "LLM service", 5*time.Second, HealthStatusDegraded, ping)
}

// MemoryHealthCheck creates a health check for heap usage against a limit in bytes
func MemoryHealthCheck(limitBytes uint64) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return memoryCheck(ms.HeapAlloc, limitBytes)
	}
}

func memoryCheck(used, limit uint64) *HealthCheck {
	if limit == 0 {
		return &HealthCheck{Name: "memory", Status: HealthStatusHealthy, Message: "No memory limit configured"}
	}
	usagePercent := float64(used) / float64(limit) * 100

	status := HealthStatusHealthy
	message := "Memory usage normal"
	if usagePercent > 90 {
		status = HealthStatusUnhealthy
		message = "Memory usage critical"
	} else if usagePercent > 75 {
		status = HealthStatusDegraded
		message = "Memory usage high"
	}

	return &HealthCheck{
		Name:    "memory",
		Status:  status,
		Message: message,
		Metadata: map[string]interface{}{
			"used_bytes":    used,
			"limit_bytes":   limit,
			"usage_percent": usagePercent,
		},
	}
}
