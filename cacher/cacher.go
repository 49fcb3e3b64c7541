// Package cacher provides a TTL cache that fills itself on misses and
// collapses concurrent fills for the same key into one call.
package cacher

import (
	"context"
	"time"
)

// FetchFunc produces the value for a key on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values of type T by string key and fetches missing ones.
// Implementations are safe for concurrent use.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn, stores
	// the result for ttl and returns it. Errors from fetchFn are returned and
	// nothing is stored.
	//
	// Parameters:
	//   - ctx: Context passed to fetchFn
	//   - key: The cache key
	//   - ttl: Lifetime of a fetched value
	//   - fetchFn: Function producing the value on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - An error if the context is done or fetchFn fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes key from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all items.
	Clear(ctx context.Context) error

	// ItemCount returns the number of cached items, including expired ones
	// not yet cleaned up.
	ItemCount(ctx context.Context) (int, error)
}
