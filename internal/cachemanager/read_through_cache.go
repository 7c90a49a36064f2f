package cachemanager

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// ReadThroughCache fills a CacheManager from a loader on miss. Concurrent
// misses for the same key share one loader call. Loader errors are not cached.
type ReadThroughCache[K ~string, V any, I any] struct {
	cache     CacheManager[K, V]
	load      func(ctx context.Context, input I) (V, error)
	skipCache bool
	group     singleflight.Group
}

// NewReadThroughCache wraps cache. With skipCache every call goes to load.
func NewReadThroughCache[K ~string, V any, I any](
	cache CacheManager[K, V],
	load func(ctx context.Context, input I) (V, error),
	skipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:     cache,
		load:      load,
		skipCache: skipCache,
	}
}

// Get returns the cached value for key or loads and caches it for ttl.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.skipCache {
		return r.load(ctx, input)
	}
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}
	return r.fill(ctx, key, input, ttl)
}

// Refresh drops any cached value for key and loads it again.
func (r *ReadThroughCache[K, V, I]) Refresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.skipCache {
		return r.load(ctx, input)
	}
	r.cache.Delete(ctx, key)
	return r.fill(ctx, key, input, ttl)
}

func (r *ReadThroughCache[K, V, I]) fill(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	v, err, _ := r.group.Do(string(key), func() (any, error) {
		// A caller that missed may arrive after another flight filled the key.
		if value, ok := r.cache.Get(ctx, key); ok {
			return value, nil
		}
		value, err := r.load(ctx, input)
		if err != nil {
			return value, err
		}
		r.cache.Set(ctx, key, value, ttl)
		return value, nil
	})
	value, _ := v.(V)
	return value, err
}
