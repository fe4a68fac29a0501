// internal/auth/handlers.go
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
	"github.com/seanankenbruck/lab-query/internal/observability"
)

// AuthHandlers provides HTTP handlers for authentication endpoints
type AuthHandlers struct {
	authManager *AuthManager
	logger      *observability.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authManager *AuthManager) *AuthHandlers {
	return &AuthHandlers{
		authManager: authManager,
		logger:      observability.NewLogger("auth-handlers"),
	}
}

// SetupRoutes registers authentication routes on r
func (ah *AuthHandlers) SetupRoutes(r *gin.RouterGroup) {
	authenticated := ah.authManager.Middleware()

	r.POST("/auth/login", ah.Login)
	r.POST("/auth/logout", ah.Logout)
	r.GET("/auth/me", authenticated, ah.GetCurrentUser)
	r.GET("/auth/status", ah.GetAuthStatus)

	r.GET("/api-keys", authenticated, ah.ListAPIKeys)
	r.POST("/api-keys", authenticated, ah.CreateAPIKey)
	r.DELETE("/api-keys/:id", authenticated, ah.RevokeAPIKey)

	admin := r.Group("/admin")
	admin.Use(authenticated, ah.authManager.RequireRole(RoleAdmin))
	{
		admin.GET("/users", ah.ListUsers)
		admin.POST("/users", ah.CreateUser)
		admin.GET("/rate-limit-stats", ah.GetRateLimitStats)
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      *User  `json:"user"`
}

// Login verifies credentials, returns a JWT and opens a cookie session when sessions are configured
func (ah *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewMissingRequiredError("username and password are required", "username", "password"))
		return
	}

	user, err := ah.authManager.Authenticate(req.Username, req.Password)
	if err != nil {
		ah.logger.Warn(c.Request.Context(), "Login failed", map[string]interface{}{
			"username": req.Username,
		})
		respondError(c, err)
		return
	}

	token, err := ah.authManager.CreateJWTToken(user)
	if err != nil {
		respondError(c, apperrors.NewTokenCreationError(err))
		return
	}

	sess, err := ah.authManager.CreateSession(c.Request.Context(), user.ID)
	switch {
	case err == nil:
		c.SetCookie(
			sessionCookie,
			sess.ID,
			int(ah.authManager.config.SessionExpiry.Seconds()),
			"/",
			"",
			false,
			true,
		)
	case errors.Is(err, ErrSessionsDisabled):
	default:
		ah.logger.Error(c.Request.Context(), "Failed to create session", err, map[string]interface{}{
			"user_id": user.ID,
		})
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(ah.authManager.config.JWTExpiry).Format(time.RFC3339),
		User:      user,
	})
}

// Logout deletes the caller's session and clears the cookie
func (ah *AuthHandlers) Logout(c *gin.Context) {
	if sessionID, err := c.Cookie(sessionCookie); err == nil && sessionID != "" {
		if err := ah.authManager.RevokeSession(c.Request.Context(), sessionID); err != nil && !errors.Is(err, ErrSessionsDisabled) {
			ah.logger.Warn(c.Request.Context(), "Failed to revoke session", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// GetCurrentUser returns the authenticated user
func (ah *AuthHandlers) GetCurrentUser(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		respondError(c, apperrors.NewNotAuthenticatedError())
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetAuthStatus returns the authentication configuration
func (ah *AuthHandlers) GetAuthStatus(c *gin.Context) {
	cfg := ah.authManager.config
	c.JSON(http.StatusOK, gin.H{
		"authentication_enabled": true,
		"sessions_enabled":       ah.authManager.sessions != nil,
		"rate_limit":             cfg.RateLimit,
		"jwt_expiry":             cfg.JWTExpiry.String(),
		"session_expiry":         cfg.SessionExpiry.String(),
	})
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Name      string `json:"name" binding:"required"`
	RateLimit int    `json:"rate_limit"`
	ExpiresIn string `json:"expires_in"` // e.g. "30d", "1y", "720h"
}

// CreateAPIKeyResponse carries the plaintext key, shown only once
type CreateAPIKeyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	RateLimit int       `json:"rate_limit"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAPIKey creates a new API key for the current user
func (ah *AuthHandlers) CreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewMissingRequiredError("name is required", "name"))
		return
	}

	userID, exists := GetCurrentUserID(c)
	if !exists {
		respondError(c, apperrors.NewNotAuthenticatedError())
		return
	}

	expiresIn, err := parseDuration(req.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		respondError(c, apperrors.NewInvalidInputError("expires_in", "expected a duration such as 30d, 2w, 1y or 720h"))
		return
	}

	apiKey, err := ah.authManager.CreateAPIKey(userID, req.Name, req.RateLimit, expiresIn)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		ID:        apiKey.ID,
		Name:      apiKey.Name,
		Key:       apiKey.Key,
		RateLimit: apiKey.RateLimit,
		ExpiresAt: apiKey.ExpiresAt,
		CreatedAt: apiKey.CreatedAt,
	})
}

// ListAPIKeys returns all API keys for the current user
func (ah *AuthHandlers) ListAPIKeys(c *gin.Context) {
	userID, exists := GetCurrentUserID(c)
	if !exists {
		respondError(c, apperrors.NewNotAuthenticatedError())
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": ah.authManager.ListAPIKeys(userID)})
}

// RevokeAPIKey revokes one of the caller's keys; admins may revoke any key
func (ah *AuthHandlers) RevokeAPIKey(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		respondError(c, apperrors.NewNotAuthenticatedError())
		return
	}

	owner := user.ID
	if user.IsAdmin() {
		owner = ""
	}
	if err := ah.authManager.RevokeAPIKey(c.Param("id"), owner); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked successfully"})
}

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	LabID    int64  `json:"lab_id"`
	Role     string `json:"role"`
}

// CreateUser creates a user bound to a lab (admin only)
func (ah *AuthHandlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewMissingRequiredError("username, email and password are required", "username", "email", "password"))
		return
	}

	user, err := ah.authManager.CreateUser(req.Username, req.Email, req.Password, req.LabID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// ListUsers returns all users (admin only)
func (ah *AuthHandlers) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": ah.authManager.ListUsers()})
}

// GetRateLimitStats returns rate limiting statistics (admin only)
func (ah *AuthHandlers) GetRateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, ah.authManager.limiter.GetStats())
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if _, ok := apperrors.As(err); !ok {
		c.JSON(status, gin.H{"error": gin.H{"code": codeFor(status), "message": err.Error()}})
		return
	}
	c.JSON(status, apperrors.ResponseBody(err))
}

// statusFor maps a handler error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAPIKeyNotFound):
		return http.StatusNotFound
	}
	return apperrors.HTTPStatus(err)
}

func codeFor(status int) string {
	switch status {
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusNotFound:
		return "NOT_FOUND"
	}
	return "INTERNAL_ERROR"
}

// parseDuration parses duration strings like "30d", "2w", "1y", "720h"
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 30 * 24 * time.Hour, nil
	}

	units := map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
		"y": 365 * 24 * time.Hour,
	}
	for suffix, unit := range units {
		if strings.HasSuffix(s, suffix) {
			n, err := strconv.Atoi(strings.TrimSuffix(s, suffix))
			if err != nil {
				return 0, err
			}
			return time.Duration(n) * unit, nil
		}
	}

	return time.ParseDuration(s)
}
