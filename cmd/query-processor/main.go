package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/seanankenbruck/lab-query/internal/auth"
	"github.com/seanankenbruck/lab-query/internal/cache"
	"github.com/seanankenbruck/lab-query/internal/config"
	"github.com/seanankenbruck/lab-query/internal/database"
	"github.com/seanankenbruck/lab-query/internal/history"
	"github.com/seanankenbruck/lab-query/internal/llm"
	"github.com/seanankenbruck/lab-query/internal/observability"
	"github.com/seanankenbruck/lab-query/internal/processor"
	"github.com/seanankenbruck/lab-query/internal/session"
)

// memoryLimitBytes is the heap size at which /health starts degrading
const memoryLimitBytes = 1 << 30

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewDefaultLoader().MustLoad(ctx)
	if err := cfg.ValidateWithContext(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	observability.SetDefaultLevel(observability.ParseLogLevel(cfg.Log.Level))
	gin.SetMode(cfg.Server.GinMode)
	logger := observability.NewLogger("main")

	db, err := database.Open(ctx, database.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, nil)
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	rdb := connectRedis(ctx, cfg.Redis, logger)
	var primary cache.Store
	if rdb != nil {
		defer rdb.Close()
		primary = cache.NewRedisStore(rdb)
	}
	resultCache := cache.NewResultCache(cache.Options{
		Primary:    primary,
		DefaultTTL: cfg.Query.CacheTTL,
	})
	go resultCache.Fallback().Start()
	defer resultCache.Fallback().Stop()

	pgExecutor := database.NewPostgresExecutor(db, cfg.Query.Timeout)
	executor := database.NewCircuitBreakerExecutor(pgExecutor, "postgres", database.DefaultCircuitBreakerConfig())

	qp := processor.NewQueryProcessor(executor, resultCache, processor.ProcessorConfig{
		CacheTTL:        cfg.Query.CacheTTL,
		MaxPromptLength: cfg.Query.MaxPromptLength,
		MaxRowLimit:     cfg.Query.MaxRowLimit,
	})
	qp.SetReportSource(database.NewReportRepository(db))
	if cfg.Query.EnableHistory {
		qp.SetHistoryStore(history.NewPostgresStore(db))
	}

	llmClient, err := llm.NewClient(llmConfig(cfg.LLM))
	if err != nil {
		log.Fatal("Failed to initialize LLM client:", err)
	}
	if llmClient != nil {
		qp.SetLLMClient(llmClient)
		logger.Info(ctx, "LLM mode enabled", map[string]interface{}{"provider": cfg.LLM.Provider})
	}

	qp.SetHealthChecker(healthChecks(db, rdb, llmClient))

	var authMiddleware processor.AuthMiddleware
	var authManager *auth.AuthManager
	if cfg.Auth.Enabled {
		authManager, err = newAuthManager(cfg.Auth, rdb, resultCache)
		if err != nil {
			log.Fatal("Failed to initialize auth:", err)
		}
		authMiddleware = authManager
		go authManager.Limiter().Run(ctx)
		go cleanupLoop(ctx, authManager)
	} else {
		logger.Warn(ctx, "Authentication disabled; lab scope comes from the request body", nil)
	}

	router := qp.SetupRoutes(authMiddleware)
	if authManager != nil {
		auth.NewAuthHandlers(authManager).SetupRoutes(router.Group("/api/v1"))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Query processor starting", map[string]interface{}{
			"port":    cfg.Server.Port,
			"version": "1.0.0",
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "Failed to start server", err, nil)
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Graceful shutdown failed", err, nil)
	}
}

// connectRedis returns nil when redis is not configured or not reachable;
// results are then cached in process only.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *observability.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn(ctx, "Redis unavailable, using in-process cache", map[string]interface{}{
			"addr":  cfg.Addr,
			"error": err.Error(),
		})
		rdb.Close()
		return nil
	}
	return rdb
}

func llmConfig(cfg config.LLMConfig) llm.Config {
	out := llm.Config{
		Provider:    cfg.Provider,
		Timeout:     cfg.Timeout,
		MaxTokens:   cfg.MaxTokens,
		MinInterval: cfg.MinInterval,
	}
	switch cfg.Provider {
	case llm.ProviderOllama:
		out.BaseURL = cfg.OllamaEndpoint
		out.Model = cfg.OllamaModel
	case llm.ProviderClaude:
		out.APIKey = cfg.ClaudeAPIKey
		out.Model = cfg.ClaudeModel
	}
	return out
}

func healthChecks(db *sql.DB, rdb *redis.Client, llmClient llm.Client) *observability.HealthChecker {
	hc := observability.NewHealthChecker()
	hc.Register("database", observability.DatabaseHealthCheck(func(ctx context.Context) error {
		return database.HealthCheck(ctx, db)
	}))
	if rdb != nil {
		hc.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	if p, ok := llmClient.(llm.Pinger); ok {
		hc.Register("llm", observability.LLMHealthCheck(p.Ping))
	}
	hc.Register("memory", observability.MemoryHealthCheck(memoryLimitBytes))
	return hc
}

// newAuthManager stores sessions in redis when available, otherwise beside
// the in-process result fallback.
func newAuthManager(cfg config.AuthConfig, rdb *redis.Client, rc *cache.ResultCache) (*auth.AuthManager, error) {
	var store cache.Store = rc.Fallback()
	if rdb != nil {
		store = cache.NewRedisStore(rdb)
	}
	sessions := session.NewManager(store, cfg.SessionExpiry)

	return auth.NewAuthManager(auth.AuthConfig{
		JWTSecret:     cfg.JWTSecret,
		JWTExpiry:     cfg.JWTExpiry,
		SessionExpiry: cfg.SessionExpiry,
		RateLimit:     cfg.RateLimit,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		AdminEmail:    cfg.AdminEmail,
		AdminLabID:    cfg.AdminLabID,
	}, sessions)
}

func cleanupLoop(ctx context.Context, am *auth.AuthManager) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.CleanupExpired()
		}
	}
}
