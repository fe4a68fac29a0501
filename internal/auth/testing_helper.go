// internal/auth/testing_helper.go
package auth

import (
	"log"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/seanankenbruck/lab-query/internal/cache"
	"github.com/seanankenbruck/lab-query/internal/session"
)

// NewTestAuthManager creates an auth manager whose sessions live in an in-memory redis
func NewTestAuthManager(config AuthConfig) *AuthManager {
	mr, err := miniredis.Run()
	if err != nil {
		log.Fatalf("Failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	sessions := session.NewManager(cache.NewRedisStore(rdb), config.SessionExpiry)

	am, err := NewAuthManager(config, sessions)
	if err != nil {
		log.Fatalf("Failed to create auth manager: %v", err)
	}
	return am
}
