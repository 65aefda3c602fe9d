// Package cache provides the read-through cache for chatroom listings.
// The cache is strictly an optimization: backend failure on read
// degrades to a direct store read, and failure on write is logged and
// ignored. It is never a source of truth.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/metrics"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

// DefaultTTL bounds staleness when an invalidation is missed.
const DefaultTTL = 300 * time.Second

// ErrMiss is returned by backends when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend is the minimal key-value surface the coordinator needs.
// RedisBackend and MemoryBackend implement it.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Coordinator manages cached chatroom listings with explicit
// invalidation on mutation.
type Coordinator struct {
	backend Backend
	ttl     time.Duration
	logger  zerolog.Logger
}

// New creates a coordinator over the given backend. A ttl of zero uses
// DefaultTTL.
func New(backend Backend, ttl time.Duration, logger zerolog.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{backend: backend, ttl: ttl, logger: logger}
}

// chatroomsKey returns the listing key for a user.
func chatroomsKey(userID string) string {
	return "chatrooms:" + userID
}

// GetChatrooms returns the cached listing for a user. The second result
// is false on miss or backend failure; either way the caller falls back
// to the store.
func (c *Coordinator) GetChatrooms(ctx context.Context, userID string) ([]models.ChatroomSummary, bool) {
	raw, err := c.backend.Get(ctx, chatroomsKey(userID))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn().Err(err).Str("user_id", userID).Msg("cache read failed, falling back to store")
		}
		metrics.CacheMisses.Inc()
		return nil, false
	}

	var rooms []models.ChatroomSummary
	if err := json.Unmarshal([]byte(raw), &rooms); err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("cache entry corrupt, dropping")
		_ = c.backend.Del(ctx, chatroomsKey(userID))
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return rooms, true
}

// SetChatrooms populates the listing entry for a user. Failures are
// logged and ignored.
func (c *Coordinator) SetChatrooms(ctx context.Context, userID string, rooms []models.ChatroomSummary) {
	raw, err := json.Marshal(rooms)
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("cache marshal failed")
		return
	}
	if err := c.backend.Set(ctx, chatroomsKey(userID), string(raw), c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("cache write failed")
	}
}

// InvalidateChatrooms drops the listing entry for a user. Every
// chatroom or message mutation calls this before reporting success.
// Failures are logged and ignored: a missed invalidation self-heals at
// ttl expiry.
func (c *Coordinator) InvalidateChatrooms(ctx context.Context, userID string) {
	if err := c.backend.Del(ctx, chatroomsKey(userID)); err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("cache invalidation failed")
	}
}
