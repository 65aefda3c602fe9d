package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores cache entries in Redis with per-key TTLs.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing Redis client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Get retrieves a key's value, mapping absence to ErrMiss.
func (b *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

// Set stores a value with a TTL.
func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// Del removes a key.
func (b *RedisBackend) Del(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

// memoryEntry is a value with an expiry deadline.
type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend is an in-process backend used by tests and when Redis
// is not configured.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

// Get retrieves a key's value, mapping absence and expiry to ErrMiss.
func (b *MemoryBackend) Get(ctx context.Context, key string) (string, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return "", ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return "", ErrMiss
	}
	return entry.value, nil
}

// Set stores a value with a TTL. A non-positive TTL means no expiry.
func (b *MemoryBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	b.entries[key] = entry
	return nil
}

// Del removes a key.
func (b *MemoryBackend) Del(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}
