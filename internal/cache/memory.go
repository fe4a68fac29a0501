package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is an in-process Store. It is safe for concurrent use and has
// no capacity bound; entries leave only by expiry or deletion.
type MemoryStore struct {
	items *ttlcache.Cache[string, []byte]
}

// NewMemoryStore creates an in-process store with the given default TTL
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		items: ttlcache.New(
			ttlcache.WithTTL[string, []byte](defaultTTL),
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
	}
}

// Start runs the expired-item cleaner until Stop is called. It blocks.
func (s *MemoryStore) Start() {
	s.items.Start()
}

// Stop halts the cleaner started by Start
func (s *MemoryStore) Stop() {
	s.items.Stop()
}

// Get returns the stored bytes or ErrCacheMiss
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item := s.items.Get(key)
	if item == nil {
		return nil, ErrCacheMiss
	}
	return item.Value(), nil
}

// Set stores value under key with the given expiry
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	s.items.Set(key, value, ttl)
	return nil
}

// Del removes key
func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// Len reports the number of stored entries, including expired ones not yet cleaned
func (s *MemoryStore) Len() int {
	return s.items.Len()
}
