// internal/auth/manager_test.go
package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
)

// TestNewAuthManager tests creation of auth manager
func TestNewAuthManager(t *testing.T) {
	tests := []struct {
		name           string
		config         AuthConfig
		expectedExpiry time.Duration
		expectAdmin    bool
	}{
		{
			name:           "default configuration has no admin",
			config:         AuthConfig{JWTSecret: "test-secret"},
			expectedExpiry: 24 * time.Hour,
		},
		{
			name: "custom configuration with admin",
			config: AuthConfig{
				JWTSecret:     "custom-secret",
				JWTExpiry:     2 * time.Hour,
				SessionExpiry: 48 * time.Hour,
				RateLimit:     200,
				AdminPassword: "s3cret",
				AdminLabID:    1,
			},
			expectedExpiry: 2 * time.Hour,
			expectAdmin:    true,
		},
		{
			name:           "empty configuration uses defaults",
			config:         AuthConfig{},
			expectedExpiry: 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewTestAuthManager(tt.config)
			require.NotNil(t, am)
			assert.NotEmpty(t, am.config.JWTSecret)
			assert.Equal(t, tt.expectedExpiry, am.config.JWTExpiry)
			assert.Positive(t, am.config.RateLimit)

			admin, err := am.GetUserByUsername("admin")
			if !tt.expectAdmin {
				assert.ErrorIs(t, err, ErrUserNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, RoleAdmin, admin.Role)
			assert.True(t, admin.Active)
			assert.NotEmpty(t, admin.PasswordHash)
		})
	}
}

// TestCreateUser tests user creation
func TestCreateUser(t *testing.T) {
	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret"})

	tests := []struct {
		name      string
		username  string
		password  string
		role      string
		wantRole  string
		wantCode  apperrors.ErrorCode
		wantExist bool
	}{
		{name: "analyst", username: "ana", password: "pw", role: RoleAnalyst, wantRole: RoleAnalyst},
		{name: "default role", username: "bob", password: "pw", wantRole: RoleAnalyst},
		{name: "admin", username: "root", password: "pw", role: RoleAdmin, wantRole: RoleAdmin},
		{name: "unknown role", username: "eve", password: "pw", role: "owner", wantCode: apperrors.ErrCodeInvalidInput},
		{name: "empty password", username: "pat", wantCode: apperrors.ErrCodeInvalidInput},
		{name: "empty username", password: "pw", wantCode: apperrors.ErrCodeInvalidInput},
		{name: "duplicate", username: "ana", password: "pw", wantExist: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := am.CreateUser(tt.username, tt.username+"@example.com", tt.password, 3, tt.role)
			switch {
			case tt.wantCode != "":
				assert.True(t, apperrors.HasCode(err, tt.wantCode))
			case tt.wantExist:
				assert.ErrorIs(t, err, ErrUserExists)
			default:
				require.NoError(t, err)
				assert.NotEmpty(t, user.ID)
				assert.Equal(t, tt.wantRole, user.Role)
				assert.Equal(t, int64(3), user.LabID)
				assert.NotEqual(t, tt.password, user.PasswordHash)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret"})
	user, err := am.CreateUser("ana", "ana@example.com", "correct", 3, RoleAnalyst)
	require.NoError(t, err)

	got, err := am.Authenticate("ana", "correct")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = am.Authenticate("ana", "wrong")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))

	_, err = am.Authenticate("nobody", "correct")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))

	user.Active = false
	_, err = am.Authenticate("ana", "correct")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))
}

func TestValidatePasswordWithoutHash(t *testing.T) {
	am := NewTestAuthManager(AuthConfig{})
	assert.False(t, am.ValidatePassword(&User{}, ""))
}

func TestUserCanAccessLab(t *testing.T) {
	analyst := &User{LabID: 3, Role: RoleAnalyst}
	admin := &User{LabID: 1, Role: RoleAdmin}

	assert.True(t, analyst.CanAccessLab(3))
	assert.False(t, analyst.CanAccessLab(4))
	assert.True(t, admin.CanAccessLab(4))
}

func TestAPIKeyLifecycle(t *testing.T) {
	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret", RateLimit: 50})
	owner, err := am.CreateUser("ana", "ana@example.com", "pw", 3, RoleAnalyst)
	require.NoError(t, err)
	other, err := am.CreateUser("bob", "bob@example.com", "pw", 4, RoleAnalyst)
	require.NoError(t, err)

	key, err := am.CreateAPIKey(owner.ID, "ci", 0, time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key.Key, APIKeyPrefix))
	assert.Equal(t, 50, key.RateLimit)
	assert.NotEqual(t, key.Key, key.HashedKey)

	user, apiKey, err := am.ValidateAPIKey(key.Key)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, user.ID)
	assert.False(t, apiKey.LastUsedAt.IsZero())

	_, _, err = am.ValidateAPIKey(APIKeyPrefix + "unknown")
	assert.Error(t, err)

	listed := am.ListAPIKeys(owner.ID)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Key)

	assert.ErrorIs(t, am.RevokeAPIKey(key.ID, other.ID), ErrAPIKeyNotFound)
	require.NoError(t, am.RevokeAPIKey(key.ID, owner.ID))
	_, _, err = am.ValidateAPIKey(key.Key)
	assert.Error(t, err)

	_, err = am.CreateAPIKey("missing", "ci", 0, time.Hour)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestExpiredAPIKeyAndCleanup(t *testing.T) {
	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret"})
	user, err := am.CreateUser("ana", "ana@example.com", "pw", 3, RoleAnalyst)
	require.NoError(t, err)

	key, err := am.CreateAPIKey(user.ID, "old", 0, -time.Minute)
	require.NoError(t, err)

	_, _, err = am.ValidateAPIKey(key.Key)
	assert.Error(t, err)

	am.CleanupExpired()
	assert.Empty(t, am.ListAPIKeys(user.ID))
}

func TestJWTToken(t *testing.T) {
	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret"})
	user, err := am.CreateUser("ana", "ana@example.com", "pw", 3, RoleAnalyst)
	require.NoError(t, err)

	token, err := am.CreateJWTToken(user)
	require.NoError(t, err)

	claims, err := am.ValidateJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, int64(3), claims.LabID)
	assert.Equal(t, RoleAnalyst, claims.Role)
	assert.Equal(t, tokenIssuer, claims.Issuer)

	t.Run("other secret", func(t *testing.T) {
		other := NewTestAuthManager(AuthConfig{JWTSecret: "other-secret"})
		_, err := other.ValidateJWTToken(token)
		assert.Error(t, err)
	})

	t.Run("unsigned token", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: user.ID, LabID: 3})
		s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = am.ValidateJWTToken(s)
		assert.Error(t, err)
	})

	t.Run("moved to another lab", func(t *testing.T) {
		user.LabID = 9
		defer func() { user.LabID = 3 }()
		_, err := am.ValidateJWTToken(token)
		assert.Error(t, err)
	})
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret"})
	user, err := am.CreateUser("ana", "ana@example.com", "pw", 3, RoleAnalyst)
	require.NoError(t, err)

	sess, err := am.CreateSession(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sess.LabID)

	got, err := am.ValidateSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, am.RevokeSession(ctx, sess.ID))
	_, err = am.ValidateSession(ctx, sess.ID)
	assert.Error(t, err)

	_, err = am.CreateSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSessionsDisabled(t *testing.T) {
	ctx := context.Background()
	am, err := NewAuthManager(AuthConfig{JWTSecret: "test-secret"}, nil)
	require.NoError(t, err)
	user, err := am.CreateUser("ana", "ana@example.com", "pw", 3, RoleAnalyst)
	require.NoError(t, err)

	_, err = am.CreateSession(ctx, user.ID)
	assert.ErrorIs(t, err, ErrSessionsDisabled)
	_, err = am.ValidateSession(ctx, "x")
	assert.ErrorIs(t, err, ErrSessionsDisabled)
	assert.ErrorIs(t, am.RevokeSession(ctx, "x"), ErrSessionsDisabled)
}

func TestListUsers(t *testing.T) {
	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret"})
	for _, name := range []string{"zed", "ana", "mia"} {
		_, err := am.CreateUser(name, name+"@example.com", "pw", 1, RoleAnalyst)
		require.NoError(t, err)
	}

	users := am.ListUsers()
	require.Len(t, users, 3)
	assert.Equal(t, "ana", users[0].Username)
	assert.Equal(t, "zed", users[2].Username)
}

func TestHashAPIKey(t *testing.T) {
	a := hashAPIKey("lq_abc")
	assert.Equal(t, a, hashAPIKey("lq_abc"))
	assert.NotEqual(t, a, hashAPIKey("lq_abd"))
	assert.Len(t, a, 64)
}

func TestConcurrentAccess(t *testing.T) {
	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret"})
	user, err := am.CreateUser("ana", "ana@example.com", "pw", 3, RoleAnalyst)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := am.CreateAPIKey(user.ID, "k", 0, time.Hour)
			if assert.NoError(t, err) {
				_, _, err = am.ValidateAPIKey(key.Key)
				assert.NoError(t, err)
			}
			am.ListUsers()
		}()
	}
	wg.Wait()

	assert.Len(t, am.ListAPIKeys(user.ID), 20)
}
