package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation error(s):\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// checks accumulates failed rules
type checks struct {
	errs ValidationErrors
}

// expect records message against field unless ok holds
func (c *checks) expect(ok bool, field, message string) {
	if !ok {
		c.errs = append(c.errs, ValidationError{Field: field, Message: message})
	}
}

func (c *checks) result() error {
	if c.errs.HasErrors() {
		return c.errs
	}
	return nil
}

const (
	maxRowLimitCap    = 100000
	minJWTSecretBytes = 32
)

var (
	llmProviders = map[string]bool{"none": true, "ollama": true, "claude": true}
	ginModes     = map[string]bool{"debug": true, "release": true, "test": true}

	insecureJWTSecrets = map[string]bool{
		"change-this-in-production": true,
		"secret":                    true,
		"jwt-secret":                true,
	}
	insecurePasswords = map[string]bool{"": true, "changeme": true, "postgres": true}
)

// Validate checks that every section is usable. All failures are reported
// together as ValidationErrors.
func (c *Config) Validate() error {
	v := &checks{}

	v.expect(c.Database.Host != "", "Database.Host", "database host is required")
	v.expect(c.Database.Port != "", "Database.Port", "database port is required")
	v.expect(c.Database.Database != "", "Database.Database", "database name is required")
	v.expect(c.Database.Username != "", "Database.Username", "database username is required")

	c.validateLLM(v)

	if c.Auth.Enabled {
		v.expect(c.Auth.JWTSecret != "", "Auth.JWTSecret", "JWT secret is required when auth is enabled")
		v.expect(c.Auth.JWTExpiry > 0, "Auth.JWTExpiry", "JWT expiry must be positive")
		v.expect(c.Auth.SessionExpiry > 0, "Auth.SessionExpiry", "session expiry must be positive")
		v.expect(c.Auth.RateLimit >= 0, "Auth.RateLimit", "rate limit must be non-negative")
		v.expect(c.Auth.AdminPassword == "" || c.Auth.AdminUsername != "",
			"Auth.AdminUsername", "admin username is required when an admin password is set")
	}

	v.expect(c.Server.Port != "", "Server.Port", "server port is required")
	v.expect(ginModes[c.Server.GinMode], "Server.GinMode",
		fmt.Sprintf("invalid gin mode: %s (must be 'debug', 'release', or 'test')", c.Server.GinMode))

	v.expect(c.Query.Timeout > 0, "Query.Timeout", "query timeout must be positive")
	v.expect(c.Query.CacheTTL > 0, "Query.CacheTTL", "cache TTL must be positive")
	v.expect(c.Query.MaxPromptLength > 0, "Query.MaxPromptLength", "max prompt length must be positive")
	v.expect(c.Query.MaxRowLimit > 0 && c.Query.MaxRowLimit <= maxRowLimitCap, "Query.MaxRowLimit",
		fmt.Sprintf("max row limit must be between 1 and %d", maxRowLimitCap))

	return v.result()
}

func (c *Config) validateLLM(v *checks) {
	if !llmProviders[c.LLM.Provider] {
		v.expect(false, "LLM.Provider",
			fmt.Sprintf("invalid provider: %s (must be 'none', 'ollama', or 'claude')", c.LLM.Provider))
		return
	}

	switch c.LLM.Provider {
	case "none":
		return
	case "ollama":
		v.expect(c.LLM.OllamaEndpoint != "", "LLM.OllamaEndpoint", "ollama endpoint is required when LLM_PROVIDER is ollama")
		v.expect(c.LLM.OllamaModel != "", "LLM.OllamaModel", "ollama model is required when LLM_PROVIDER is ollama")
	case "claude":
		v.expect(c.LLM.ClaudeAPIKey != "", "LLM.ClaudeAPIKey", "Claude API key is required when LLM_PROVIDER is claude")
		v.expect(c.LLM.ClaudeModel != "", "LLM.ClaudeModel", "Claude model is required when LLM_PROVIDER is claude")
	}

	v.expect(c.LLM.Timeout > 0, "LLM.Timeout", "LLM timeout must be positive")
	v.expect(c.LLM.MinInterval >= 0, "LLM.MinInterval", "LLM minimum interval must be non-negative")
}

// ValidateProduction rejects insecure defaults that must not reach a release deployment
func (c *Config) ValidateProduction() error {
	v := &checks{}

	v.expect(!insecurePasswords[c.Database.Password], "Database.Password",
		"production deployment must not use default or empty database password")
	if c.Redis.Addr != "" {
		v.expect(!insecurePasswords[c.Redis.Password], "Redis.Password",
			"production deployment must not use default or empty Redis password")
	}

	v.expect(c.Auth.Enabled, "Auth.Enabled",
		"production deployment must enable authentication so queries are bound to a lab")

	switch {
	case insecureJWTSecrets[c.Auth.JWTSecret]:
		v.expect(false, "Auth.JWTSecret", "production deployment must not use default or insecure JWT secret")
	case len(c.Auth.JWTSecret) < minJWTSecretBytes:
		v.expect(false, "Auth.JWTSecret",
			fmt.Sprintf("JWT secret should be at least %d characters for production use", minJWTSecretBytes))
	}

	v.expect(c.Server.GinMode == "release", "Server.GinMode", "production deployment should use 'release' mode")

	return v.result()
}

// IsProduction reports whether gin runs in release mode
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// ValidateWithContext validates configuration and runs production checks if appropriate
func (c *Config) ValidateWithContext() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.IsProduction() {
		if err := c.ValidateProduction(); err != nil {
			return fmt.Errorf("production validation failed: %w", err)
		}
	}

	return nil
}
