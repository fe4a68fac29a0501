package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/lab-query/internal/cache"
)

func newRedisManager(t *testing.T, expiry time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(cache.NewRedisStore(client), expiry), mr
}

func TestManagerCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t, time.Hour)

	sess, err := m.Create(ctx, "u1", "analyst", 4, "analyst")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, int64(4), got.LabID)
	assert.Equal(t, "analyst", got.Role)
}

func TestManagerRedisTTL(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t, time.Minute)

	sess, err := m.Create(ctx, "u1", "analyst", 4, "analyst")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerExpiredEnvelope(t *testing.T) {
	ctx := context.Background()
	m := NewManager(cache.NewMemoryStore(time.Hour), time.Hour)

	sess, err := m.Create(ctx, "u1", "analyst", 4, "analyst")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerRefreshAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewManager(cache.NewMemoryStore(time.Hour), time.Hour)

	sess, err := m.Create(ctx, "u1", "analyst", 4, "analyst")
	require.NoError(t, err)

	require.NoError(t, m.Refresh(ctx, sess.ID))
	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.ExpiresAt.Before(sess.ExpiresAt))

	require.NoError(t, m.Delete(ctx, sess.ID))
	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerUnknownSession(t *testing.T) {
	m := NewManager(cache.NewMemoryStore(time.Hour), 0)
	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 7*24*time.Hour, m.Expiry())
}
