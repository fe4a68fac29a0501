package config

import (
	"context"
	"testing"
	"time"
)

func TestConfigLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("loads all configuration sections", func(t *testing.T) {
		loader := NewLoader(MapProvider{
			"DB_HOST":          "test-host",
			"DB_NAME":          "labs",
			"DB_PASSWORD":      "test-pass",
			"REDIS_ADDR":       "test-redis:6379",
			"REDIS_DB":         "2",
			"LLM_PROVIDER":     "Claude",
			"CLAUDE_API_KEY":   "sk-ant-test",
			"LLM_MIN_INTERVAL": "250ms",
			"AUTH_ENABLED":     "true",
			"JWT_SECRET":       "test-jwt-secret-with-sufficient-length-32chars",
			"ADMIN_LAB_ID":     "9",
			"RATE_LIMIT":       "50",
			"PORT":             "8080",
			"CACHE_TTL":        "1m",
			"MAX_ROW_LIMIT":    "500",
			"ENABLE_HISTORY":   "false",
			"LOG_LEVEL":        "debug",
		})

		cfg, err := loader.Load(ctx)
		if err != nil {
			t.Fatalf("unexpected error loading config: %v", err)
		}

		if cfg.Database.Host != "test-host" || cfg.Database.Database != "labs" {
			t.Errorf("unexpected database config: %+v", cfg.Database)
		}
		if cfg.Redis.Addr != "test-redis:6379" || cfg.Redis.DB != 2 {
			t.Errorf("unexpected redis config: %+v", cfg.Redis)
		}
		if cfg.LLM.Provider != "claude" {
			t.Errorf("expected provider to be lowercased, got '%s'", cfg.LLM.Provider)
		}
		if cfg.LLM.MinInterval != 250*time.Millisecond {
			t.Errorf("expected min interval 250ms, got %v", cfg.LLM.MinInterval)
		}
		if !cfg.Auth.Enabled || cfg.Auth.AdminLabID != 9 || cfg.Auth.RateLimit != 50 {
			t.Errorf("unexpected auth config: %+v", cfg.Auth)
		}
		if cfg.Server.Port != "8080" {
			t.Errorf("expected port '8080', got '%s'", cfg.Server.Port)
		}
		if cfg.Query.CacheTTL != time.Minute || cfg.Query.MaxRowLimit != 500 || cfg.Query.EnableHistory {
			t.Errorf("unexpected query config: %+v", cfg.Query)
		}
		if cfg.Log.Level != "debug" {
			t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
		}
	})

	t.Run("uses default values", func(t *testing.T) {
		cfg, err := NewLoader(MapProvider{}).Load(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Database.Host != "localhost" || cfg.Database.Port != "5432" {
			t.Errorf("unexpected database defaults: %+v", cfg.Database)
		}
		if cfg.Server.Port != "7000" {
			t.Errorf("expected default port '7000', got '%s'", cfg.Server.Port)
		}
		if cfg.LLM.Provider != "none" {
			t.Errorf("expected default provider 'none', got '%s'", cfg.LLM.Provider)
		}
		if cfg.Auth.Enabled {
			t.Error("auth should be disabled by default")
		}
		if cfg.Query.CacheTTL != 30*time.Second {
			t.Errorf("expected default cache TTL 30s, got %v", cfg.Query.CacheTTL)
		}
		if cfg.Query.MaxRowLimit != 100000 {
			t.Errorf("expected default row limit 100000, got %d", cfg.Query.MaxRowLimit)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("defaults should validate: %v", err)
		}
	})

	t.Run("malformed values fall back to defaults", func(t *testing.T) {
		cfg, err := NewLoader(MapProvider{
			"QUERY_TIMEOUT":  "soon",
			"RATE_LIMIT":     "lots",
			"ENABLE_HISTORY": "maybe",
		}).Load(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Query.Timeout != 30*time.Second {
			t.Errorf("expected query timeout 30s, got %v", cfg.Query.Timeout)
		}
		if cfg.Auth.RateLimit != 100 {
			t.Errorf("expected rate limit 100, got %d", cfg.Auth.RateLimit)
		}
		if !cfg.Query.EnableHistory {
			t.Error("expected history to stay enabled")
		}
	})

	t.Run("reads the environment", func(t *testing.T) {
		t.Setenv("JWT_EXPIRY", "12h")
		t.Setenv("QUERY_TIMEOUT", "45s")

		cfg := NewLoader(NewEnvProvider()).MustLoad(ctx)
		if cfg.Auth.JWTExpiry != 12*time.Hour {
			t.Errorf("expected JWT expiry 12h, got %v", cfg.Auth.JWTExpiry)
		}
		if cfg.Query.Timeout != 45*time.Second {
			t.Errorf("expected query timeout 45s, got %v", cfg.Query.Timeout)
		}
	})
}
