// Package session stores browser login sessions in the shared cache store so
// every replica sees the same sessions.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seanankenbruck/lab-query/internal/cache"
)

const (
	sessionPrefix = "session:"
	sessionIDLen  = 32
)

// ErrNotFound is returned for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Session is the data kept for one logged in user
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	LabID     int64     `json:"lab_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager handles session storage and retrieval
type Manager struct {
	store  cache.Store
	expiry time.Duration
	now    func() time.Time
}

// NewManager creates a session manager over store
func NewManager(store cache.Store, expiry time.Duration) *Manager {
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &Manager{
		store:  store,
		expiry: expiry,
		now:    time.Now,
	}
}

// Expiry returns the session lifetime
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// Create stores a new session and returns it with its generated ID
func (m *Manager) Create(ctx context.Context, userID, username string, labID int64, role string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	sess := &Session{
		ID:        id,
		UserID:    userID,
		Username:  username,
		LabID:     labID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.expiry),
	}
	if err := m.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get retrieves a session by ID
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := m.store.Get(ctx, sessionPrefix+sessionID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if m.now().After(sess.ExpiresAt) {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Delete removes a session
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.store.Del(ctx, sessionPrefix+sessionID)
}

// Refresh extends the session expiry
func (m *Manager) Refresh(ctx context.Context, sessionID string) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.ExpiresAt = m.now().Add(m.expiry)
	return m.save(ctx, sess)
}

func (m *Manager) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.store.Set(ctx, sessionPrefix+sess.ID, data, m.expiry); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func generateSessionID() (string, error) {
	b := make([]byte, sessionIDLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
