// Package memcache is a small typed TTL+LRU cache: entries expire after a
// fixed TTL and the least-recently-accessed entry is evicted once the cache
// grows past its capacity. Pure in-memory bookkeeping; no I/O.
//
// Expired entries are kept (until evicted or invalidated) so GetStale can
// serve them as a last resort when a fresh fetch fails.
package memcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	fetchedAt  time.Time
	lastAccess time.Time
}

// Cache is safe for concurrent use. The zero value is not usable; construct
// with New.
type Cache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*entry[V]

	now func() time.Time // swapped in tests
}

// New constructs a cache holding at most capacity entries, each fresh for
// ttl after Put. capacity <= 0 means unbounded; ttl <= 0 means entries never
// go stale.
func New[V any](ttl time.Duration, capacity int) *Cache[V] {
	return &Cache[V]{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*entry[V]),
		now:      time.Now,
	}
}

// Get returns the value for key if present and fresh, updating its access
// time. Expired or absent keys miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && now.Sub(e.fetchedAt) >= c.ttl {
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

// GetStale returns the value for key if present, ignoring TTL. It does not
// update the access time; serving a stale fallback should not protect the
// entry from eviction.
func (c *Cache[V]) GetStale(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, then evicts least-recently-accessed entries
// until the cache is back at or under capacity. Ties on access time break by
// smallest key.
func (c *Cache[V]) Put(key string, value V) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[V]{value: value, fetchedAt: now, lastAccess: now}
	if c.capacity <= 0 {
		return
	}
	for len(c.entries) > c.capacity {
		c.evictOldest()
	}
}

// evictOldest removes the entry with the minimum lastAccess. Callers hold mu.
func (c *Cache[V]) evictOldest() {
	var victim string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		switch {
		case first:
			victim, oldest = k, e.lastAccess
			first = false
		case e.lastAccess.Before(oldest):
			victim, oldest = k, e.lastAccess
		case e.lastAccess.Equal(oldest) && k < victim:
			victim = k
		}
	}
	if !first {
		delete(c.entries, victim)
	}
}

// Invalidate removes key if present.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes everything. Called on sign-out to prevent cross-identity
// leakage.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry[V])
	c.mu.Unlock()
}

// Len returns the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return n
}
