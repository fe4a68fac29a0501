package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckerCachesResults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hc := NewHealthCheckerWithClock(clock)

	calls := 0
	hc.Register("database", func(context.Context) *HealthCheck {
		calls++
		return &HealthCheck{Status: HealthStatusHealthy}
	})

	ctx := context.Background()
	first := hc.Check(ctx)
	require.Contains(t, first, "database")
	assert.Equal(t, "database", first["database"].Name)
	assert.Equal(t, clock.Now(), first["database"].LastChecked)

	hc.Check(ctx)
	assert.Equal(t, 1, calls)

	clock.Advance(6 * time.Second)
	hc.Check(ctx)
	assert.Equal(t, 2, calls)
}

func TestOverallStatus(t *testing.T) {
	healthy := &HealthCheck{Status: HealthStatusHealthy}
	degraded := &HealthCheck{Status: HealthStatusDegraded}
	unhealthy := &HealthCheck{Status: HealthStatusUnhealthy}

	tests := []struct {
		name   string
		checks map[string]*HealthCheck
		want   HealthStatus
	}{
		{name: "no checks", checks: map[string]*HealthCheck{}, want: HealthStatusHealthy},
		{name: "all healthy", checks: map[string]*HealthCheck{"a": healthy, "b": healthy}, want: HealthStatusHealthy},
		{name: "one degraded", checks: map[string]*HealthCheck{"a": healthy, "b": degraded}, want: HealthStatusDegraded},
		{name: "unhealthy wins", checks: map[string]*HealthCheck{"a": degraded, "b": unhealthy}, want: HealthStatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverallStatus(tt.checks))
		})
	}
}

func TestDependencyChecks(t *testing.T) {
	ctx := context.Background()
	down := func(context.Context) error { return errors.New("connection refused") }
	up := func(context.Context) error { return nil }

	assert.Equal(t, HealthStatusHealthy, DatabaseHealthCheck(up)(ctx).Status)
	assert.Equal(t, HealthStatusUnhealthy, DatabaseHealthCheck(down)(ctx).Status)
	assert.Equal(t, HealthStatusDegraded, RedisHealthCheck(down)(ctx).Status)
	assert.Equal(t, HealthStatusDegraded, LLMHealthCheck(down)(ctx).Status)

	check := RedisHealthCheck(down)(ctx)
	assert.Equal(t, "redis", check.Name)
	assert.Contains(t, check.Message, "connection refused")
}

func TestDependencyCheckBoundsThePing(t *testing.T) {
	var deadline time.Time
	DatabaseHealthCheck(func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})(context.Background())
	assert.False(t, deadline.IsZero())
}

func TestMemoryCheck(t *testing.T) {
	tests := []struct {
		used, limit uint64
		want        HealthStatus
	}{
		{used: 10, limit: 0, want: HealthStatusHealthy},
		{used: 50, limit: 100, want: HealthStatusHealthy},
		{used: 80, limit: 100, want: HealthStatusDegraded},
		{used: 95, limit: 100, want: HealthStatusUnhealthy},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, memoryCheck(tt.used, tt.limit).Status)
	}
	assert.Equal(t, "memory", MemoryHealthCheck(1<<40)(context.Background()).Name)
}

func TestGetHealthResponse(t *testing.T) {
	hc := NewHealthCheckerWithClock(clockwork.NewFakeClock())
	hc.Register("redis", RedisHealthCheck(func(context.Context) error { return errors.New("down") }))

	resp := hc.GetHealthResponse(context.Background())
	assert.Equal(t, HealthStatusDegraded, resp.Status)
	assert.Equal(t, ServiceName, resp.Metadata["service"])
	assert.Len(t, resp.Checks, 1)
}
