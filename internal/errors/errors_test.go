package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedErrorMessage(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeExecution, "Server error").WithDetails("connection reset")

	assert.Equal(t, "[EXECUTION_FAILED] Server error: connection reset (cause: connection reset)", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestUserMessage(t *testing.T) {
	err := NewEmptyPromptError()
	msg := err.UserMessage()

	assert.Contains(t, msg, "Empty prompt")
	assert.Contains(t, msg, "Details:")
	assert.Contains(t, msg, "Suggestion:")
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("compile: %w", NewDisallowedColumnError("password"))

	enhanced, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeDisallowedColumn, enhanced.Code)
	assert.Equal(t, "password", enhanced.Metadata["column"])
	assert.True(t, HasCode(wrapped, ErrCodeDisallowedColumn))
	assert.False(t, HasCode(wrapped, ErrCodeInvalidTenant))

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty prompt", NewEmptyPromptError(), http.StatusBadRequest},
		{"invalid tenant", NewInvalidTenantError("abc"), http.StatusBadRequest},
		{"disallowed column", NewDisallowedColumnError("x"), http.StatusBadRequest},
		{"unsafe statement", NewUnsafeStatementError("unsafe keyword"), http.StatusUnprocessableEntity},
		{"missing fields", NewMissingRequiredError("labId and prompt are required", "labId"), http.StatusBadRequest},
		{"tenant mismatch", NewTenantMismatchError(2, 1), http.StatusForbidden},
		{"not authenticated", NewNotAuthenticatedError(), http.StatusUnauthorized},
		{"rate limited", NewRateLimitedError("llm"), http.StatusTooManyRequests},
		{"generation failed", NewQueryGenerationError(stderrors.New("boom")), http.StatusBadGateway},
		{"execution failed", NewExecutionError(stderrors.New("syntax error")), http.StatusInternalServerError},
		{"plain error", stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestExecutionErrorCarriesCauseMessage(t *testing.T) {
	err := NewExecutionError(stderrors.New(`pq: relation "FoodReports" does not exist`))
	assert.Equal(t, `pq: relation "FoodReports" does not exist`, err.Details)
	assert.Equal(t, true, err.Metadata["retryable"])
}

func TestResponseBody(t *testing.T) {
	body := ResponseBody(fmt.Errorf("compile: %w", NewDisallowedColumnError("salary")))
	inner, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, ErrCodeDisallowedColumn, inner["code"])
	assert.Equal(t, "disallowed column salary", inner["details"])
	assert.Equal(t, map[string]interface{}{"column": "salary"}, inner["metadata"])

	plain := ResponseBody(stderrors.New("boom"))
	assert.Equal(t, map[string]interface{}{"code": "INTERNAL_ERROR", "message": "Server error"}, plain["error"])
}
