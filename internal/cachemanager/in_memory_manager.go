package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/tether/internal/log"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// InMemoryCacheManager is a CacheManager backed by go-cache.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

var _ CacheManager[string, int] = (*InMemoryCacheManager[string, int])(nil)

// NewInMemoryCacheManager creates a cache; useCase names it in logs.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get returns the cached value for key.
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V

	value, found := c.cache.Get(string(key))
	if !found {
		log.Debug(log.CatCache, "cache miss", "cache", c.useCase, "key", key)
		return zero, false
	}
	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type in cache", "cache", c.useCase, "key", key)
		return zero, false
	}

	log.Debug(log.CatCache, "cache hit", "cache", c.useCase, "key", key)
	return v, true
}

// GetWithRefresh returns the cached value and extends its TTL.
func (c *InMemoryCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	value, found := c.Get(ctx, key)
	if found {
		c.Set(ctx, key, value, ttl)
	}
	return value, found
}

// Set stores value under key. A zero ttl uses the cache default.
func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(string(key), value, ttl)
}

// Delete removes keys.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
}

// Flush removes everything.
func (c *InMemoryCacheManager[K, V]) Flush(context.Context) {
	c.cache.Flush()
}
