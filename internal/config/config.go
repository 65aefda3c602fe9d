package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	JWTSecret string

	// Provider
	GeminiAPIKey    string
	GeminiModel     string
	ProviderTimeout time.Duration

	// Worker pool and retry policy
	WorkerConcurrency int
	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	// Daily message limits per subscription tier
	BasicTierDailyLimit int
	ProTierDailyLimit   int

	CacheTTL time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/chat.db"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		RetryMaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:    getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 60*time.Second),

		BasicTierDailyLimit: getEnvInt("BASIC_TIER_DAILY_LIMIT", 5),
		ProTierDailyLimit:   getEnvInt("PRO_TIER_DAILY_LIMIT", 1000),

		CacheTTL: getEnvDuration("CACHE_TTL", 300*time.Second),
	}

	// In production, require the secrets the pipeline cannot run without
	if cfg.Env == "production" {
		if cfg.JWTSecret == "" {
			panic("JWT_SECRET is required in production")
		}
		if cfg.GeminiAPIKey == "" {
			panic("GEMINI_API_KEY is required in production")
		}
	}
	if cfg.JWTSecret == "" {
		// Development fallback; production panics above before this.
		cfg.JWTSecret = "dev-secret-do-not-use"
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration parses a Go duration string ("30s", "2m"), falling
// back to a plain integer interpreted as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
