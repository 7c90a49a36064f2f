// Package cachemanager provides small TTL caches used to avoid repeating
// slow lookups such as fetching the update manifest.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager stores values by key with a per-entry TTL.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K)
	Flush(ctx context.Context)
}
