// Package cache provides a short-TTL read-path cache for endpoints that
// recompute aggregates over every user/symbol on every request (the
// leaderboard and stats summary). It prefers redis but degrades to an
// in-process map transparently when redis is unreachable, adapting the
// evdnx-goexchange fallback-manager's "try primary, fall back on error"
// shape to a single cache dependency instead of a set of exchanges.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a byte-oriented short-TTL cache. Get reports whether the key was
// present and unexpired.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// entry is one in-memory cache slot.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// memoryCache is the in-process fallback used when no redis address is
// configured, or when redis calls start failing.
type memoryCache struct {
	mu   sync.Mutex
	data map[string]entry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]entry)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// RedisCache wraps a redis client and falls back to an in-process cache
// whenever a call to redis errors, logging once per transition rather than
// on every request.
type RedisCache struct {
	client   *redis.Client
	fallback *memoryCache
	logger   *zap.Logger

	mu        sync.Mutex
	degraded  bool
}

// NewRedisCache constructs a cache backed by addr ("host:port"). addr may
// be empty, in which case the cache operates purely on the in-process
// fallback (useful for tests and single-process deployments).
func NewRedisCache(addr string, logger *zap.Logger) *RedisCache {
	c := &RedisCache{fallback: newMemoryCache(), logger: logger}
	if addr != "" {
		c.client = redis.NewClient(&redis.Options{Addr: addr})
	}
	return c
}

func (c *RedisCache) markDegraded(err error) {
	c.mu.Lock()
	wasDegraded := c.degraded
	c.degraded = true
	c.mu.Unlock()
	if !wasDegraded && c.logger != nil {
		c.logger.Warn("cache: redis unavailable, falling back to in-process cache", zap.Error(err))
	}
}

func (c *RedisCache) markRecovered() {
	c.mu.Lock()
	wasDegraded := c.degraded
	c.degraded = false
	c.mu.Unlock()
	if wasDegraded && c.logger != nil {
		c.logger.Info("cache: redis connectivity recovered")
	}
}

// Get tries redis first whenever a client is configured (a degraded cache
// still tries redis on every call), then the fallback.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client != nil {
		v, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			c.markRecovered()
			return v, true
		}
		if err != redis.Nil {
			c.markDegraded(err)
		} else {
			c.markRecovered()
		}
	}
	return c.fallback.Get(ctx, key)
}

// Set writes through to redis (best-effort) and always to the fallback, so
// a later redis outage does not lose recently-cached values.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.client != nil {
		if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
			c.markDegraded(err)
		} else {
			c.markRecovered()
		}
	}
	c.fallback.Set(ctx, key, value, ttl)
}
