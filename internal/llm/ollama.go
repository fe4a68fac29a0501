package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	OllamaDefaultEndpoint = "http://localhost:11434"
	OllamaDefaultModel    = "llama3.2:1b"
)

// OllamaClient implements Client against a local Ollama server
type OllamaClient struct {
	endpoint  string
	model     string
	maxTokens int
	retry     RetryConfig
	client    *http.Client
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaClient creates a client for the /api/generate endpoint
func NewOllamaClient(cfg Config) *OllamaClient {
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if endpoint == "" {
		endpoint = OllamaDefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = OllamaDefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 150
	}

	return &OllamaClient{
		endpoint:  endpoint,
		model:     model,
		maxTokens: maxTokens,
		retry:     DefaultRetryConfig,
		client:    &http.Client{Timeout: timeout},
	}
}

// WithRetryConfig overrides the retry policy
func (c *OllamaClient) WithRetryConfig(config RetryConfig) *OllamaClient {
	c.retry = config
	return c
}

// GenerateSQL asks the local model for a statement
func (c *OllamaClient) GenerateSQL(ctx context.Context, prompt string) (*Response, error) {
	request := ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: Temperature,
			NumPredict:  c.maxTokens,
		},
	}

	response, err := withRetry(ctx, c.retry, func(ctx context.Context) (*ollamaResponse, error) {
		return c.generate(ctx, request)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}

	sql := ExtractSQL(response.Response)
	if sql == "" {
		return nil, fmt.Errorf("ollama did not return a SQL statement")
	}

	return &Response{
		SQL:          sql,
		Explanation:  explanationOutside(response.Response),
		Model:        response.Model,
		InputTokens:  response.PromptEvalCount,
		OutputTokens: response.EvalCount,
	}, nil
}

func (c *OllamaClient) generate(ctx context.Context, request ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := string(data)
		var oe ollamaError
		if json.Unmarshal(data, &oe) == nil && oe.Error != "" {
			message = oe.Error
		}
		return nil, &APIError{Provider: ProviderOllama, StatusCode: resp.StatusCode, Message: message}
	}

	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &out, nil
}

// Ping checks that the server is reachable
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Provider: ProviderOllama, StatusCode: resp.StatusCode, Message: "ping failed"}
	}
	return nil
}
