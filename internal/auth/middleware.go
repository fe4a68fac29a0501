// internal/auth/middleware.go
package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
	"github.com/seanankenbruck/lab-query/internal/observability"
)

// Context keys set on authenticated requests
const (
	ContextUser     = "user"
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextLabID    = "lab_id"
	ContextRole     = "role"
)

const sessionCookie = "session_id"

var errNoCredentials = errors.New("no credentials")

// Middleware returns a Gin middleware for authentication
func (am *AuthManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if shouldSkipAuth(c.Request.URL.Path) {
			c.Next()
			return
		}

		user, apiKey, err := am.authenticateRequest(c)
		if err != nil {
			abortWithError(c, apperrors.NewNotAuthenticatedError())
			return
		}

		limit := am.config.RateLimit
		if apiKey != nil {
			limit = apiKey.RateLimit
		}
		if !am.limiter.Allow(getClientID(c, user, apiKey), limit) {
			observability.GetGlobalMetrics().Inc(observability.MetricAuthRateLimited, nil)
			abortWithError(c, apperrors.NewRateLimitedError("API"))
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextUserID, user.ID)
		c.Set(ContextUsername, user.Username)
		c.Set(ContextLabID, user.LabID)
		c.Set(ContextRole, user.Role)

		ctx := observability.WithUserID(c.Request.Context(), user.ID)
		ctx = observability.WithLabID(ctx, user.LabID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole returns a middleware that checks if user has one of the roles
func (am *AuthManager) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := GetCurrentUser(c)
		if !exists {
			abortWithError(c, apperrors.NewNotAuthenticatedError())
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		abortWithError(c, apperrors.NewInsufficientPermissionsError(strings.Join(roles, "|")))
	}
}

// authenticateRequest tries bearer token, API key and session cookie in order
func (am *AuthManager) authenticateRequest(c *gin.Context) (*User, *APIKey, error) {
	if user, err := am.authenticateJWT(c); err == nil {
		return user, nil, nil
	}

	if user, apiKey, err := am.authenticateAPIKey(c); err == nil {
		return user, apiKey, nil
	}

	if user, err := am.authenticateSession(c); err == nil {
		return user, nil, nil
	}

	return nil, nil, errNoCredentials
}

func (am *AuthManager) authenticateJWT(c *gin.Context) (*User, error) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errNoCredentials
	}

	claims, err := am.ValidateJWTToken(parts[1])
	if err != nil {
		return nil, err
	}
	return am.GetUser(claims.UserID)
}

func (am *AuthManager) authenticateAPIKey(c *gin.Context) (*User, *APIKey, error) {
	key := c.GetHeader("X-API-Key")
	if key == "" {
		return nil, nil, errNoCredentials
	}

	observability.GetGlobalMetrics().Inc(observability.MetricAuthAPIKeyRequests, nil)
	return am.ValidateAPIKey(key)
}

func (am *AuthManager) authenticateSession(c *gin.Context) (*User, error) {
	sessionID, err := c.Cookie(sessionCookie)
	if err != nil || sessionID == "" {
		return nil, errNoCredentials
	}
	return am.ValidateSession(c.Request.Context(), sessionID)
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), apperrors.ResponseBody(err))
}

// shouldSkipAuth checks if a path is served without credentials
func shouldSkipAuth(path string) bool {
	switch path {
	case "/", "/health", "/metrics", "/api/v1/auth/login", "/api/v1/auth/status":
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

// getClientID gets a unique identifier for rate limiting
func getClientID(c *gin.Context, user *User, apiKey *APIKey) string {
	if apiKey != nil {
		return "key:" + apiKey.ID
	}
	if user != nil {
		return "user:" + user.ID
	}
	return "ip:" + c.ClientIP()
}

// GetCurrentUser returns the authenticated user from context
func GetCurrentUser(c *gin.Context) (*User, bool) {
	value, exists := c.Get(ContextUser)
	if !exists {
		return nil, false
	}
	user, ok := value.(*User)
	return user, ok
}

// GetCurrentUserID returns the authenticated user ID from context
func GetCurrentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextUserID)
	return userID, userID != ""
}
