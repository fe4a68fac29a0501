package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// LLM configuration for the free-text mode
	LLM LLMConfig

	// Authentication configuration
	Auth AuthConfig

	// Server configuration
	Server ServerConfig

	// Query configuration
	Query QueryConfig

	// Log configuration
	Log LogConfig
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// RedisConfig holds Redis configuration. An empty Addr disables the shared
// cache; results are then cached in process only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LLMConfig selects and configures the SQL generation provider
type LLMConfig struct {
	Provider       string // "none", "ollama", "claude"
	OllamaEndpoint string
	OllamaModel    string
	ClaudeAPIKey   string
	ClaudeModel    string
	Timeout        time.Duration
	MinInterval    time.Duration
	MaxTokens      int
}

// AuthConfig holds authentication and authorization configuration
type AuthConfig struct {
	Enabled       bool
	JWTSecret     string
	JWTExpiry     time.Duration
	SessionExpiry time.Duration
	RateLimit     int
	AdminUsername string
	AdminPassword string
	AdminEmail    string
	AdminLabID    int64
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    string
	GinMode string
}

// QueryConfig holds question processing configuration
type QueryConfig struct {
	Timeout         time.Duration
	CacheTTL        time.Duration
	MaxPromptLength int
	MaxRowLimit     int
	EnableHistory   bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. Kubernetes secrets (if available)
// 2. File-based secrets (if available)
// 3. Environment variables (fallback)
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{
		NewK8sProvider("", ""),
		NewFileProvider("/var/secrets"),
		NewEnvProvider(),
	}

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Database = DatabaseConfig{
		Host:     l.getString(ctx, "DB_HOST", "localhost"),
		Port:     l.getString(ctx, "DB_PORT", "5432"),
		Database: l.getString(ctx, "DB_NAME", "lab_query"),
		Username: l.getString(ctx, "DB_USER", "postgres"),
		Password: l.getString(ctx, "DB_PASSWORD", ""),
		SSLMode:  l.getString(ctx, "DB_SSLMODE", "disable"),
	}

	cfg.Redis = RedisConfig{
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
	}

	cfg.LLM = LLMConfig{
		Provider:       strings.ToLower(l.getString(ctx, "LLM_PROVIDER", "none")),
		OllamaEndpoint: l.getString(ctx, "OLLAMA_ENDPOINT", "http://localhost:11434"),
		OllamaModel:    l.getString(ctx, "OLLAMA_MODEL", "llama3.2:1b"),
		ClaudeAPIKey:   l.getString(ctx, "CLAUDE_API_KEY", ""),
		ClaudeModel:    l.getString(ctx, "CLAUDE_MODEL", "claude-3-haiku-20240307"),
		Timeout:        l.getDuration(ctx, "LLM_TIMEOUT", 60*time.Second),
		MinInterval:    l.getDuration(ctx, "LLM_MIN_INTERVAL", 1500*time.Millisecond),
		MaxTokens:      l.getInt(ctx, "LLM_MAX_TOKENS", 512),
	}

	cfg.Auth = AuthConfig{
		Enabled:       l.getBool(ctx, "AUTH_ENABLED", false),
		JWTSecret:     l.getString(ctx, "JWT_SECRET", ""),
		JWTExpiry:     l.getDuration(ctx, "JWT_EXPIRY", 24*time.Hour),
		SessionExpiry: l.getDuration(ctx, "SESSION_EXPIRY", 7*24*time.Hour),
		RateLimit:     l.getInt(ctx, "RATE_LIMIT", 100),
		AdminUsername: l.getString(ctx, "ADMIN_USERNAME", "admin"),
		AdminPassword: l.getString(ctx, "ADMIN_PASSWORD", ""),
		AdminEmail:    l.getString(ctx, "ADMIN_EMAIL", "admin@localhost"),
		AdminLabID:    int64(l.getInt(ctx, "ADMIN_LAB_ID", 1)),
	}

	cfg.Server = ServerConfig{
		Port:    l.getString(ctx, "PORT", "7000"),
		GinMode: l.getString(ctx, "GIN_MODE", "debug"),
	}

	cfg.Query = QueryConfig{
		Timeout:         l.getDuration(ctx, "QUERY_TIMEOUT", 30*time.Second),
		CacheTTL:        l.getDuration(ctx, "CACHE_TTL", 30*time.Second),
		MaxPromptLength: l.getInt(ctx, "MAX_PROMPT_LENGTH", 500),
		MaxRowLimit:     l.getInt(ctx, "MAX_ROW_LIMIT", 100000),
		EnableHistory:   l.getBool(ctx, "ENABLE_HISTORY", true),
	}

	cfg.Log = LogConfig{
		Level: l.getString(ctx, "LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Helper methods for retrieving and parsing configuration values

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// MustLoad loads configuration and panics on error
// Useful for application startup
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
