// Package cache provides a small thread-safe TTL cache used to keep
// repeated market-data lookups off the wire.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// TTL caches values for a fixed maximum age. Fetches for the same cache
// are serialized, so concurrent callers never race the upstream source.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	maxAge  time.Duration
	now     func() time.Time
	entries map[K]entry[V]
}

// New returns a TTL cache whose entries expire after maxAge.
func New[K comparable, V any](maxAge time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		maxAge:  maxAge,
		now:     time.Now,
		entries: make(map[K]entry[V]),
	}
}

// GetOrFetch returns the cached value for key when it is still fresh,
// otherwise calls fetch and caches the result. Fetch errors are returned
// as-is and nothing is cached.
func (c *TTL[K, V]) GetOrFetch(key K, fetch func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.now().Sub(e.fetchedAt) <= c.maxAge {
		return e.value, nil
	}

	value, err := fetch()
	if err != nil {
		var zero V
		return zero, err
	}

	c.entries[key] = entry[V]{value: value, fetchedAt: c.now()}
	return value, nil
}

// Invalidate drops the entry for key, if any.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}
