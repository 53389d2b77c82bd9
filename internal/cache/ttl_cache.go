// Package cache provides a thread-safe cache with per-entry time-based
// expiration.
package cache

import (
	"sync"
	"time"
)

// entry pairs a cached value with its expiry deadline.
type entry[V any] struct {
	value    V
	deadline time.Time
}

// TTLCache is a thread-safe key-value cache where every entry expires on
// its own deadline, set when the entry is stored. Annotation tables load
// per book at different times, so staleness is tracked per entry rather
// than for the cache as a whole.
type TTLCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]entry[V]
	ttl  time.Duration
}

// New creates an empty TTLCache whose entries live for ttl after being set.
// A non-positive ttl makes every entry expire immediately, effectively
// disabling the cache.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]entry[V]),
		ttl:  ttl,
	}
}

// Get retrieves a live value. An absent or expired key reports ok=false;
// expired entries are left for Set or Invalidate to overwrite.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || time.Now().After(e.deadline) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value with a fresh deadline, replacing any previous entry
// for the key.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		c.data = make(map[K]entry[V])
	}
	c.data[key] = entry[V]{value: value, deadline: time.Now().Add(c.ttl)}
}

// Delete removes one entry.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Invalidate drops every entry, expired or not.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]entry[V])
}

// Len counts the live entries and drops the expired ones it passes over.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	n := 0
	for k, e := range c.data {
		if now.After(e.deadline) {
			delete(c.data, k)
			continue
		}
		n++
	}
	return n
}
