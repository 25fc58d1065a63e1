// Package cache implements C1, the TTL-bounded response cache (§4.1).
//
// It is generic over the cache key and stored value so the core package can
// use it without creating an import cycle back to the wire types; TTL
// computation from a response's records (the "minimum TTL over answers,
// authorities and additionals" rule) is the caller's responsibility and is
// passed in as rawTTL.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is a cached value together with its expiry and whether it was
// inserted as a negative (failure) result.
type entry[V any] struct {
	value     V
	expiresAt time.Time
	negative  bool
	elem      *list.Element
}

// maxEntries bounds the cache size; the least-recently-used entry is
// evicted once exceeded, following the teacher's list-based LRU
// (classmarkets-go-dns-resolver's cache/cache.go).
const maxEntries = 10_000

// Cache is a concurrency-safe, TTL-bounded K -> V map with single-flight
// collapsing of concurrent misses for the same key (§1's "single-flight
// properties"). K is constrained to string-kind types so it can double as
// a singleflight.Group key.
type Cache[K ~string, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	lru     *list.List

	sf singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats is a read-only snapshot of cache activity, for observability.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// New returns an empty Cache.
func New[K ~string, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		lru:     list.New(),
	}
}

// Get returns the cached value for key if present and unexpired. A hit on
// an expired entry removes it and reports a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	if !time.Now().Before(e.expiresAt) {
		c.removeLocked(key, e)
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.lru.MoveToBack(e.elem)
	c.hits.Add(1)
	return e.value, true
}

// Put inserts value under key, computing expires_at from rawTTL per §4.1:
//
//  1. negative overrides rawTTL with negativeTTL.
//  2. rawTTL == 0 (and not negative) means "do not cache".
//  3. rawTTL is clamped to [minTTL, maxTTL] where either is positive (a
//     zero bound means "unset", per §6.3; a negative bound such as
//     Infinite applies no clamp).
//
// A later Put for the same key fully replaces the earlier entry
// (insert-over semantics); Put never mutates a previously returned value.
func (c *Cache[K, V]) Put(key K, value V, rawTTL time.Duration, negative bool, negativeTTL, minTTL, maxTTL time.Duration) {
	ttl := rawTTL
	if negative {
		ttl = negativeTTL
	} else if ttl <= 0 {
		return // zero-TTL positive response: do not cache (§4.1 step 3)
	}

	if ttl < 0 {
		ttl = 0
	}
	if minTTL > 0 && ttl < minTTL {
		ttl = minTTL
	}
	if maxTTL > 0 && ttl > maxTTL {
		ttl = maxTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		e = &entry[V]{}
		e.elem = c.lru.PushBack(key)
		c.entries[key] = e
	} else {
		c.lru.MoveToBack(e.elem)
	}

	e.value = value
	e.negative = negative
	e.expiresAt = time.Now().Add(ttl)

	c.evictLocked()
}

// Resolve returns the cached value for key if present; otherwise it calls
// compute at most once across all concurrent callers sharing key (via
// singleflight) and returns its result. compute is expected to insert any
// cacheable result into the Cache itself (via Put), since only it knows the
// TTL-computation and clamping inputs for the value it produces; Resolve
// exists purely to collapse duplicate concurrent dispatches, not to manage
// insertion.
func (c *Cache[K, V]) Resolve(key K, compute func() (V, error)) (value V, fromCache bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	result, err, _ := c.sf.Do(string(key), func() (interface{}, error) {
		return compute()
	})

	if err != nil {
		var zero V
		return zero, false, err
	}

	return result.(V), false, nil
}

// Clear removes every cached entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V])
	c.lru.Init()
}

// Len returns the number of stored entries. It does not proactively sweep
// expired entries, so the count includes expired entries that no Get has
// removed yet.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of hit/miss counters and the current entry
// count.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}

func (c *Cache[K, V]) removeLocked(key K, e *entry[V]) {
	delete(c.entries, key)
	c.lru.Remove(e.elem)
}

func (c *Cache[K, V]) evictLocked() {
	for len(c.entries) > maxEntries {
		front := c.lru.Front()
		if front == nil {
			return
		}
		key := front.Value.(K)
		delete(c.entries, key)
		c.lru.Remove(front)
	}
}
