package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	ClaudeAPIBaseURL   = "https://api.anthropic.com/v1"
	ClaudeVersion      = "2023-06-01"
	ClaudeDefaultModel = "claude-3-5-sonnet-20241022"
	MaxTokens          = 300
	Temperature        = 0.1
)

// ClaudeClient implements Client using the Anthropic messages API
type ClaudeClient struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	retry     RetryConfig
	client    *http.Client
}

// Claude API request structures
type ClaudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Messages    []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Claude API response structures
type ClaudeResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   Usage          `json:"usage"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ClaudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClaudeClient creates a new Claude client
func NewClaudeClient(cfg Config) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = ClaudeDefaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ClaudeAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = MaxTokens
	}

	return &ClaudeClient{
		apiKey:    cfg.APIKey,
		model:     model,
		baseURL:   baseURL,
		maxTokens: maxTokens,
		retry:     DefaultRetryConfig,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// WithRetryConfig overrides the retry policy
func (c *ClaudeClient) WithRetryConfig(config RetryConfig) *ClaudeClient {
	c.retry = config
	return c
}

// GenerateSQL sends the prompt to Claude and extracts the statement from the reply
func (c *ClaudeClient) GenerateSQL(ctx context.Context, prompt string) (*Response, error) {
	request := ClaudeRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: Temperature,
		Messages:    []Message{{Role: "user", Content: prompt}},
	}

	response, err := withRetry(ctx, c.retry, func(ctx context.Context) (*ClaudeResponse, error) {
		return c.sendClaudeRequest(ctx, request)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Claude: %w", err)
	}

	if len(response.Content) == 0 {
		return nil, fmt.Errorf("Claude returned an empty reply")
	}
	text := response.Content[0].Text

	sql := ExtractSQL(text)
	if sql == "" {
		return nil, fmt.Errorf("Claude did not return a SQL statement")
	}

	return &Response{
		SQL:          sql,
		Explanation:  explanationOutside(text),
		Model:        response.Model,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}, nil
}

func (c *ClaudeClient) sendClaudeRequest(ctx context.Context, request ClaudeRequest) (*ClaudeResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", ClaudeVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := string(body)
		var errorResponse ClaudeErrorResponse
		if json.Unmarshal(body, &errorResponse) == nil && errorResponse.Error.Message != "" {
			message = errorResponse.Error.Message
		}
		return nil, &APIError{Provider: ProviderClaude, StatusCode: resp.StatusCode, Message: message}
	}

	var claudeResponse ClaudeResponse
	if err := json.Unmarshal(body, &claudeResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &claudeResponse, nil
}

// Ping checks that the API accepts the configured key
func (c *ClaudeClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", ClaudeVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Provider: ProviderClaude, StatusCode: resp.StatusCode, Message: "ping failed"}
	}
	return nil
}
