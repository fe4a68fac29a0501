// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Question compilation errors
	ErrCodeEmptyPrompt      ErrorCode = "EMPTY_PROMPT"
	ErrCodeInvalidTenant    ErrorCode = "INVALID_TENANT"
	ErrCodeDisallowedColumn ErrorCode = "DISALLOWED_COLUMN"
	ErrCodeUnsafeStatement  ErrorCode = "UNSAFE_STATEMENT"

	// Execution errors
	ErrCodeExecution       ErrorCode = "EXECUTION_FAILED"
	ErrCodeQueryGeneration ErrorCode = "QUERY_GENERATION_FAILED"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"

	// Database errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY_FAILED"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenCreation      ErrorCode = "TOKEN_CREATION_FAILED"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeInsufficientPerms  ErrorCode = "INSUFFICIENT_PERMISSIONS"
	ErrCodeTenantMismatch     ErrorCode = "TENANT_MISMATCH"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Cache errors (logged, never returned to callers)
	ErrCodeCacheRead  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite ErrorCode = "CACHE_WRITE_FAILED"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code          ErrorCode              `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	Suggestion    string                 `json:"suggestion,omitempty"`
	Documentation string                 `json:"documentation,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message with suggestions
func (e *EnhancedError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}
	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}
	if e.Documentation != "" {
		sb.WriteString(fmt.Sprintf("\n\nLearn more: %s", e.Documentation))
	}

	return sb.String()
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// As extracts an EnhancedError from an error chain
func As(err error) (*EnhancedError, bool) {
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) {
		return enhanced, true
	}
	return nil, false
}

// HasCode reports whether any EnhancedError in the chain carries the given code
func HasCode(err error, code ErrorCode) bool {
	enhanced, ok := As(err)
	return ok && enhanced.Code == code
}

// HTTPStatus maps an error to the HTTP status code returned to clients.
// Safety rejections use 422 so they stay distinguishable from malformed input.
func HTTPStatus(err error) int {
	enhanced, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch enhanced.Code {
	case ErrCodeEmptyPrompt, ErrCodeInvalidTenant, ErrCodeDisallowedColumn,
		ErrCodeInvalidInput, ErrCodeMissingRequired:
		return http.StatusBadRequest
	case ErrCodeUnsafeStatement:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidCredentials, ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case ErrCodeInsufficientPerms, ErrCodeTenantMismatch:
		return http.StatusForbidden
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeQueryGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors with pre-configured messages

// NewEmptyPromptError creates an error for a question that is blank after trimming
func NewEmptyPromptError() *EnhancedError {
	return New(ErrCodeEmptyPrompt, "Empty prompt").
		WithDetails("The question was empty after trimming whitespace").
		WithSuggestion("Ask a question such as 'average fat' or 'protein greater than 10'.")
}

// NewInvalidTenantError creates an error for a lab id that is not an integer
func NewInvalidTenantError(value interface{}) *EnhancedError {
	return New(ErrCodeInvalidTenant, "Invalid labId").
		WithDetails(fmt.Sprintf("labId must be an integer, got %v", value)).
		WithSuggestion("Send the numeric lab identifier, for example {\"labId\": 3}.")
}

// NewDisallowedColumnError creates an error for a column outside the whitelist
func NewDisallowedColumnError(column string) *EnhancedError {
	return New(ErrCodeDisallowedColumn, "Disallowed column").
		WithDetails(fmt.Sprintf("disallowed column %s", column)).
		WithSuggestion("Only lab_id, protein, fat, weight, expiry and created_at can be queried.").
		WithMetadata("column", column)
}

// NewUnsafeStatementError creates an error for a statement rejected by the safety guard
func NewUnsafeStatementError(reason string) *EnhancedError {
	return New(ErrCodeUnsafeStatement, "Unsafe SQL detected").
		WithDetails(fmt.Sprintf("The statement was rejected: %s", reason)).
		WithSuggestion("Only read queries against FoodReports scoped to your lab are allowed.").
		WithMetadata("reason", reason)
}

// NewExecutionError creates an error for a failed statement execution
func NewExecutionError(err error) *EnhancedError {
	details := "The database could not execute the query"
	if err != nil {
		details = err.Error()
	}
	return Wrap(err, ErrCodeExecution, "Server error").
		WithDetails(details).
		WithSuggestion("This is an internal server error. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}

// NewQueryGenerationError creates an error for SQL generation failures
func NewQueryGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeQueryGeneration, "Failed to generate SQL query").
		WithDetails("The language model was unable to convert your question to SQL").
		WithSuggestion("Try the rule-based mode, or simplify your question.").
		WithMetadata("retryable", true)
}

// NewRateLimitedError creates an error for callers that exceed a rate limit
func NewRateLimitedError(scope string) *EnhancedError {
	return New(ErrCodeRateLimited, "Rate limit exceeded").
		WithDetails(fmt.Sprintf("Too many %s requests", scope)).
		WithSuggestion("Wait a moment before retrying.").
		WithMetadata("retryable", true)
}

// NewTenantMismatchError creates an error for a caller querying a lab it is not bound to
func NewTenantMismatchError(requested, allowed int64) *EnhancedError {
	return New(ErrCodeTenantMismatch, "Lab access denied").
		WithDetails(fmt.Sprintf("Credentials are bound to lab %d, request asked for lab %d", allowed, requested)).
		WithSuggestion("Query your own lab, or use credentials issued for the requested lab.")
}

// NewInvalidCredentialsError creates an error for authentication failures
func NewInvalidCredentialsError() *EnhancedError {
	return New(ErrCodeInvalidCredentials, "Invalid username or password").
		WithDetails("Authentication failed with the provided credentials").
		WithSuggestion("Please check your username and password and try again.")
}

// NewTokenCreationError creates an error for token creation failures
func NewTokenCreationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTokenCreation, "Failed to create authentication token").
		WithDetails("The system was unable to generate an authentication token").
		WithSuggestion("This is an internal server error. Please try logging in again.").
		WithMetadata("retryable", true)
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *EnhancedError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Log in using /api/v1/auth/login, or include a valid API key in the 'X-API-Key' header.")
}

// NewInsufficientPermissionsError creates an error for callers lacking a role
func NewInsufficientPermissionsError(role string) *EnhancedError {
	return New(ErrCodeInsufficientPerms, "Insufficient permissions").
		WithDetails(fmt.Sprintf("This action requires the '%s' role", role))
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}

// NewMissingRequiredError creates an error for absent request fields
func NewMissingRequiredError(message string, fields ...string) *EnhancedError {
	return New(ErrCodeMissingRequired, message).
		WithDetails(fmt.Sprintf("Missing: %s", strings.Join(fields, ", "))).
		WithMetadata("fields", fields)
}

// NewDatabaseConnectionError creates an error for database connection failures
func NewDatabaseConnectionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("Unable to connect to the database").
		WithSuggestion("The service may be experiencing issues. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewDatabaseQueryError creates an error for database query failures
func NewDatabaseQueryError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseQuery, "Database query failed").
		WithDetails(fmt.Sprintf("Failed to execute database operation: %s", operation)).
		WithSuggestion("This is an internal server error. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}

// NewCacheError wraps a cache backend failure for logging
func NewCacheError(err error, code ErrorCode, key string) *EnhancedError {
	return Wrap(err, code, "Cache backend operation failed").
		WithDetails("Falling back to the in-process store").
		WithMetadata("key", key)
}

// ResponseBody renders err as the JSON error envelope returned by every handler
func ResponseBody(err error) map[string]interface{} {
	enhanced, ok := As(err)
	if !ok {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    "INTERNAL_ERROR",
				"message": "Server error",
			},
		}
	}

	body := map[string]interface{}{
		"code":    enhanced.Code,
		"message": enhanced.Message,
	}
	if enhanced.Details != "" {
		body["details"] = enhanced.Details
	}
	if enhanced.Suggestion != "" {
		body["suggestion"] = enhanced.Suggestion
	}
	if enhanced.Documentation != "" {
		body["documentation"] = enhanced.Documentation
	}
	if len(enhanced.Metadata) > 0 {
		body["metadata"] = enhanced.Metadata
	}
	return map[string]interface{}{"error": body}
}
