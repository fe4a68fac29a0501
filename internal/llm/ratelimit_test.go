package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
)

func TestRateLimitedClient(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("GenerateSQL", mock.Anything, "q").Return(&Response{SQL: "SELECT 1"}, nil)

	client := NewRateLimitedClient(mockClient, ProviderOllama, time.Hour)

	resp, err := client.GenerateSQL(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", resp.SQL)

	_, err = client.GenerateSQL(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRateLimited))
	mockClient.AssertNumberOfCalls(t, "GenerateSQL", 1)
}

func TestRateLimitedClientRefills(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("GenerateSQL", mock.Anything, "q").Return(&Response{SQL: "SELECT 1"}, nil)

	client := NewRateLimitedClient(mockClient, ProviderOllama, 20*time.Millisecond)

	_, err := client.GenerateSQL(context.Background(), "q")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = client.GenerateSQL(context.Background(), "q")
	assert.NoError(t, err)
}

func TestNewClient(t *testing.T) {
	t.Run("none disables the llm path", func(t *testing.T) {
		c, err := NewClient(Config{Provider: ProviderNone})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("ollama", func(t *testing.T) {
		c, err := NewClient(Config{Provider: ProviderOllama})
		require.NoError(t, err)
		assert.IsType(t, &RateLimitedClient{}, c)
	})

	t.Run("claude without key", func(t *testing.T) {
		_, err := NewClient(Config{Provider: ProviderClaude})
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "groq"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})
}
