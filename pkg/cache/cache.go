// Package cache provides the two caches shared by every phpup process.
//
// [Cache] is a small key/value store for JSON values such as mirror rankings
// and vendor metadata. [FileCache] keeps them on disk, [RedisCache] shares
// them between hosts, and [NewNullCache] disables caching.
//
// [Store] is the artifact content cache. It holds downloaded tarballs keyed
// by logical artifact identity together with their checksums and expiry.
//
// Both caches live under <root>/cache and may be used by several processes
// at once. Writes go to a temporary file that is renamed into place, so a
// reader never observes a partially written entry.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values with an optional TTL.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}

// Namespace returns a view of c that prefixes every key.
func Namespace(c Cache, prefix string) Cache {
	if ns, ok := c.(*namespaced); ok {
		return &namespaced{inner: ns.inner, prefix: ns.prefix + prefix}
	}
	return &namespaced{inner: c, prefix: prefix}
}

type namespaced struct {
	inner  Cache
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return n.inner.Set(ctx, n.prefix+key, data, ttl)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

// Close is a no-op; the underlying cache is owned by whoever created it.
func (n *namespaced) Close() error { return nil }

// NewNullCache returns a Cache that stores nothing. Every Get misses.
func NewNullCache() Cache { return nullCache{} }

type nullCache struct{}

func (nullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (nullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (nullCache) Delete(context.Context, string) error                     { return nil }
func (nullCache) Close() error                                             { return nil }
