// Package cache stores finished document results in Redis, keyed by the
// document content and the processing inputs that shape the result.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "docroute:result:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ResultCache is a read-through cache of serialized results. A nil store
// makes every lookup miss and every write a no-op.
type ResultCache struct {
	store Store
	ttl   time.Duration
}

func New(store Store, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{store: store, ttl: ttl}
}

// NewFromClient wraps rdb, treating a nil client as a disabled cache.
func NewFromClient(rdb *redis.Client, ttl time.Duration) *ResultCache {
	if rdb == nil {
		return New(nil, ttl)
	}
	return New(rdb, ttl)
}

// Key derives the cache key for data processed with the given
// discriminators (mode, doc type, budget...).
func Key(data []byte, parts ...string) string {
	h := sha256.New()
	h.Write(data)
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *ResultCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Get returns the cached payload. Redis errors are logged and reported as a miss.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	b, err := c.store.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache.get_error", "key", key, "error", err)
		}
		return nil, false
	}
	return b, true
}

func (c *ResultCache) Set(ctx context.Context, key string, payload []byte) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		slog.Warn("cache.set_error", "key", key, "error", err)
	}
}
