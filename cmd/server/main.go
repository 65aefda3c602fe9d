package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/api"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/cache"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/chat"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/config"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/handlers"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/provider"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/queue"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/quota"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/retry"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/store"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/worker"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Run migrations
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Initialize the data store: Postgres when configured, SQLite otherwise
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sq, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sq
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer dataStore.Close()

	// Initialize Redis-backed queue and cache, with in-process fallback
	var (
		redisClient  *redis.Client
		jobQueue     queue.Queue
		cacheBackend cache.Backend
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisClient.Close()
		jobQueue = queue.NewRedisQueue(redisClient)
		cacheBackend = cache.NewRedisBackend(redisClient)
		logger.Info().Msg("connected to Redis")
	} else {
		jobQueue = queue.NewMemoryQueue()
		cacheBackend = cache.NewMemoryBackend()
		logger.Warn().Msg("REDIS_URL not set, using in-process queue and cache")
	}
	defer jobQueue.Close()

	cacheCoord := cache.New(cacheBackend, cfg.CacheTTL, logger)

	// AI provider
	gemini := provider.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	var prober handlers.HealthProber
	if cfg.GeminiAPIKey != "" {
		prober = gemini
	}

	// Quota accounting
	accountant := quota.NewAccountant(dataStore, quota.Limits{
		Basic: cfg.BasicTierDailyLimit,
		Pro:   cfg.ProTierDailyLimit,
	})

	// Orchestrator and worker pool
	svc := chat.NewService(dataStore, accountant, cacheCoord, jobQueue, logger)

	policy := retry.Policy{
		Base:        cfg.RetryBaseDelay,
		Factor:      2,
		Cap:         cfg.RetryMaxDelay,
		MaxAttempts: cfg.RetryMaxAttempts,
	}
	pool := worker.New(jobQueue, dataStore, gemini, cacheCoord, policy, worker.Config{
		Size:        cfg.WorkerConcurrency,
		CallTimeout: cfg.ProviderTimeout,
	}, logger)
	pool.Start(ctx)

	// Create router
	h := handlers.NewHandler(svc, dataStore, jobQueue, redisClient, prober, logger)
	router := api.NewRouter(logger, h, cfg.JWTSecret)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Int("workers", cfg.WorkerConcurrency).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout. Drain HTTP first so no
	// new jobs arrive, then stop the workers; in-flight jobs are handed
	// back to the queue.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	pool.Stop()

	logger.Info().Msg("server stopped")
}
