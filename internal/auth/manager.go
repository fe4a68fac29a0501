// internal/auth/manager.go
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
	"github.com/seanankenbruck/lab-query/internal/observability"
	"github.com/seanankenbruck/lab-query/internal/session"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
)

// APIKeyPrefix marks keys issued by this service
const APIKeyPrefix = "lq_"

const tokenIssuer = "lab-query"

var (
	// ErrUserExists is returned when creating a user whose username is taken
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned for unknown user IDs or usernames
	ErrUserNotFound = errors.New("user not found")
	// ErrAPIKeyNotFound is returned when revoking an unknown key
	ErrAPIKeyNotFound = errors.New("API key not found")
	// ErrSessionsDisabled is returned when no session manager is configured
	ErrSessionsDisabled = errors.New("sessions are not configured")
)

// User is an account bound to one lab
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	LabID        int64     `json:"lab_id"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user may act on any lab
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanAccessLab reports whether the user may query labID
func (u *User) CanAccessLab(labID int64) bool {
	return u.IsAdmin() || u.LabID == labID
}

// APIKey represents an API key for authentication
type APIKey struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key,omitempty"` // plaintext, only returned on creation
	HashedKey  string    `json:"-"`
	UserID     string    `json:"user_id"`
	RateLimit  int       `json:"rate_limit"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Active     bool      `json:"active"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	LabID    int64  `json:"lab_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret     string
	JWTExpiry     time.Duration
	SessionExpiry time.Duration
	// RateLimit is requests per minute per client
	RateLimit int

	// The admin account is only created when AdminPassword is set
	AdminUsername string
	AdminPassword string
	AdminEmail    string
	AdminLabID    int64
}

// AuthManager handles authentication and user management
type AuthManager struct {
	config         AuthConfig
	users          map[string]*User   // userID -> User
	apiKeys        map[string]*APIKey // hashedKey -> APIKey
	userByUsername map[string]*User
	sessions       *session.Manager
	limiter        *RateLimiter
	logger         *observability.Logger
	now            func() time.Time
	mu             sync.RWMutex
}

// NewAuthManager creates a new authentication manager. sessions may be nil,
// in which case cookie sessions are unavailable.
func NewAuthManager(config AuthConfig, sessions *session.Manager) (*AuthManager, error) {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	if config.SessionExpiry == 0 {
		config.SessionExpiry = 7 * 24 * time.Hour
	}
	if config.RateLimit == 0 {
		config.RateLimit = 100
	}
	if config.JWTSecret == "" {
		config.JWTSecret = generateRandomString(32)
	}
	if config.AdminUsername == "" {
		config.AdminUsername = "admin"
	}

	am := &AuthManager{
		config:         config,
		users:          make(map[string]*User),
		apiKeys:        make(map[string]*APIKey),
		userByUsername: make(map[string]*User),
		sessions:       sessions,
		limiter:        NewRateLimiter(),
		logger:         observability.NewLogger("auth"),
		now:            time.Now,
	}

	if config.AdminPassword != "" {
		email := config.AdminEmail
		if email == "" {
			email = config.AdminUsername + "@localhost"
		}
		admin, err := am.CreateUser(config.AdminUsername, email, config.AdminPassword, config.AdminLabID, RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("failed to create admin user: %w", err)
		}
		am.logger.Info(context.Background(), "Created admin user", map[string]interface{}{
			"user_id":  admin.ID,
			"username": admin.Username,
		})
	}

	return am, nil
}

// Config returns the effective configuration
func (am *AuthManager) Config() AuthConfig {
	return am.config
}

// Limiter returns the per-client rate limiter used by the middleware
func (am *AuthManager) Limiter() *RateLimiter {
	return am.limiter
}

// CreateUser creates a user with a bcrypt-hashed password
func (am *AuthManager) CreateUser(username, email, password string, labID int64, role string) (*User, error) {
	if username == "" {
		return nil, apperrors.NewInvalidInputError("username", "must not be empty")
	}
	if password == "" {
		return nil, apperrors.NewInvalidInputError("password", "must not be empty")
	}
	if role == "" {
		role = RoleAnalyst
	}
	if role != RoleAdmin && role != RoleAnalyst {
		return nil, apperrors.NewInvalidInputError("role", "must be admin or analyst")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.userByUsername[username]; exists {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		LabID:        labID,
		Role:         role,
		Active:       true,
		CreatedAt:    am.now(),
	}

	am.users[user.ID] = user
	am.userByUsername[username] = user

	return user, nil
}

// ValidatePassword checks password against the user's hash. Users without a
// hash can never log in with a password.
func (am *AuthManager) ValidatePassword(user *User, password string) bool {
	if user.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// Authenticate verifies a username and password
func (am *AuthManager) Authenticate(username, password string) (*User, error) {
	metrics := observability.GetGlobalMetrics()
	labels := map[string]string{"method": "password"}
	metrics.Inc(observability.MetricAuthAttempts, labels)

	user, err := am.GetUserByUsername(username)
	if err != nil || !user.Active || !am.ValidatePassword(user, password) {
		metrics.Inc(observability.MetricAuthFailure, labels)
		return nil, apperrors.NewInvalidCredentialsError()
	}

	metrics.Inc(observability.MetricAuthSuccess, labels)
	return user, nil
}

// GetUser retrieves a user by ID
func (am *AuthManager) GetUser(userID string) (*User, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	user, exists := am.users[userID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (am *AuthManager) GetUserByUsername(username string) (*User, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	user, exists := am.userByUsername[username]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return user, nil
}

// CreateAPIKey creates a new API key for a user. rateLimit <= 0 uses the configured default.
func (am *AuthManager) CreateAPIKey(userID, name string, rateLimit int, expiresIn time.Duration) (*APIKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.users[userID]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if rateLimit <= 0 {
		rateLimit = am.config.RateLimit
	}

	key := generateAPIKey()
	now := am.now()
	apiKey := &APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key,
		HashedKey: hashAPIKey(key),
		UserID:    userID,
		RateLimit: rateLimit,
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
		Active:    true,
	}
	am.apiKeys[apiKey.HashedKey] = apiKey

	observability.GetGlobalMetrics().Inc(observability.MetricAuthTokensCreated, map[string]string{"type": "api_key"})

	return apiKey, nil
}

// ValidateAPIKey validates an API key and returns the associated user
func (am *AuthManager) ValidateAPIKey(key string) (*User, *APIKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	apiKey, exists := am.apiKeys[hashAPIKey(key)]
	if !exists {
		return nil, nil, fmt.Errorf("invalid API key")
	}
	if !apiKey.Active {
		return nil, nil, fmt.Errorf("API key is inactive")
	}
	if am.now().After(apiKey.ExpiresAt) {
		return nil, nil, fmt.Errorf("API key has expired")
	}

	user, exists := am.users[apiKey.UserID]
	if !exists {
		return nil, nil, fmt.Errorf("user not found for API key")
	}
	if !user.Active {
		return nil, nil, fmt.Errorf("user is inactive")
	}

	apiKey.LastUsedAt = am.now()
	return user, apiKey, nil
}

// CreateJWTToken creates a signed token carrying the user's lab and role
func (am *AuthManager) CreateJWTToken(user *User) (string, error) {
	now := am.now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		LabID:    user.LabID,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(am.config.JWTExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(am.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	observability.GetGlobalMetrics().Inc(observability.MetricAuthTokensCreated, map[string]string{"type": "jwt"})
	return signed, nil
}

// ValidateJWTToken validates a token and returns its claims. Tokens whose lab
// or role no longer match the stored user are rejected.
func (am *AuthManager) ValidateJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.config.JWTSecret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	am.mu.RLock()
	user, exists := am.users[claims.UserID]
	am.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("user not found")
	}
	if !user.Active {
		return nil, fmt.Errorf("user is inactive")
	}
	if user.LabID != claims.LabID || user.Role != claims.Role {
		return nil, fmt.Errorf("token is stale")
	}

	return claims, nil
}

// CreateSession opens a cookie session for a user
func (am *AuthManager) CreateSession(ctx context.Context, userID string) (*session.Session, error) {
	if am.sessions == nil {
		return nil, ErrSessionsDisabled
	}

	user, err := am.GetUser(userID)
	if err != nil {
		return nil, err
	}

	sess, err := am.sessions.Create(ctx, user.ID, user.Username, user.LabID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// ValidateSession resolves a session to its user and extends its lifetime
func (am *AuthManager) ValidateSession(ctx context.Context, sessionID string) (*User, error) {
	if am.sessions == nil {
		return nil, ErrSessionsDisabled
	}

	sess, err := am.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	user, err := am.GetUser(sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("user not found for session")
	}
	if !user.Active {
		return nil, fmt.Errorf("user is inactive")
	}
	if user.LabID != sess.LabID {
		return nil, fmt.Errorf("session is stale")
	}

	if err := am.sessions.Refresh(ctx, sessionID); err != nil {
		am.logger.Warn(ctx, "Failed to refresh session", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return user, nil
}

// RevokeSession deletes a session
func (am *AuthManager) RevokeSession(ctx context.Context, sessionID string) error {
	if am.sessions == nil {
		return ErrSessionsDisabled
	}
	return am.sessions.Delete(ctx, sessionID)
}

// RevokeAPIKey deactivates a key. A non-empty ownerID restricts revocation to
// that user's keys.
func (am *AuthManager) RevokeAPIKey(keyID, ownerID string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, apiKey := range am.apiKeys {
		if apiKey.ID != keyID {
			continue
		}
		if ownerID != "" && apiKey.UserID != ownerID {
			break
		}
		apiKey.Active = false
		return nil
	}

	return fmt.Errorf("%w: %s", ErrAPIKeyNotFound, keyID)
}

// CleanupExpired removes expired API keys and idle rate limit buckets
func (am *AuthManager) CleanupExpired() {
	am.mu.Lock()
	now := am.now()
	for hash, apiKey := range am.apiKeys {
		if now.After(apiKey.ExpiresAt) {
			delete(am.apiKeys, hash)
		}
	}
	am.mu.Unlock()

	am.limiter.Cleanup()
}

// ListAPIKeys returns a user's keys without their plaintext values
func (am *AuthManager) ListAPIKeys(userID string) []*APIKey {
	am.mu.RLock()
	defer am.mu.RUnlock()

	keys := make([]*APIKey, 0)
	for _, apiKey := range am.apiKeys {
		if apiKey.UserID == userID {
			keyCopy := *apiKey
			keyCopy.Key = ""
			keys = append(keys, &keyCopy)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.Before(keys[j].CreatedAt)
	})
	return keys
}

// ListUsers returns all users ordered by username
func (am *AuthManager) ListUsers() []*User {
	am.mu.RLock()
	defer am.mu.RUnlock()

	users := make([]*User, 0, len(am.users))
	for _, user := range am.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users
}

func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

func generateAPIKey() string {
	return APIKeyPrefix + generateRandomString(32)
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
