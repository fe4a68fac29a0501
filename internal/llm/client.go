// Package llm turns a free-text question into a candidate SQL statement using
// a large language model. Output from this package is untrusted: callers must
// pass it through the safety guard before execution.
package llm

import (
	"context"
	"time"
)

// Client generates SQL from a fully built prompt
type Client interface {
	GenerateSQL(ctx context.Context, prompt string) (*Response, error)
}

// Response represents the response from the model
type Response struct {
	SQL          string `json:"sql"`
	Explanation  string `json:"explanation,omitempty"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Tokens returns the number of tokens consumed by the call
func (r *Response) Tokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider names accepted by LLM_PROVIDER
const (
	ProviderNone   = "none"
	ProviderOllama = "ollama"
	ProviderClaude = "claude"
)

// Config holds configuration for LLM clients
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	MinInterval time.Duration
}
