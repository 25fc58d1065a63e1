package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type key string

func TestCache_GetMiss(t *testing.T) {
	c := New[key, string]()

	v, ok := c.Get("missing")

	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCache_PutThenGet(t *testing.T) {
	c := New[key, string]()

	c.Put("example.com:A:IN", "93.184.216.34", 60*time.Second, false, 0, 0, 0)

	v, ok := c.Get("example.com:A:IN")
	assert.True(t, ok)
	assert.Equal(t, "93.184.216.34", v)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestCache_ZeroTTLPositiveNeverCached(t *testing.T) {
	c := New[key, string]()

	c.Put("k", "v", 0, false, 0, 0, 0)

	_, ok := c.Get("k")
	assert.False(t, ok, "a zero-TTL positive response must never be cached")
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_NegativeEntryUsesFailedResultsCacheDuration(t *testing.T) {
	c := New[key, string]()

	c.Put("k", "NXDOMAIN", 0, true, 5*time.Second, 0, 0)

	v, ok := c.Get("k")
	require.True(t, ok, "a negative entry is cached even though raw_ttl was 0")
	assert.Equal(t, "NXDOMAIN", v)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestCache_ClampsToConfiguredBounds(t *testing.T) {
	t.Run("below minimum", func(t *testing.T) {
		c := New[key, string]()
		c.Put("k", "v", 1*time.Second, false, 0, 10*time.Second, 0)

		before := timeNow()
		_, ok := c.Get("k")
		assert.True(t, ok)
		assert.WithinDuration(t, before.Add(10*time.Second), expiryOf(t, c, "k"), 2*time.Second)
	})

	t.Run("above maximum", func(t *testing.T) {
		c := New[key, string]()
		c.Put("k", "v", 1*time.Hour, false, 0, 0, 5*time.Second)

		before := timeNow()
		_, ok := c.Get("k")
		assert.True(t, ok)
		assert.WithinDuration(t, before.Add(5*time.Second), expiryOf(t, c, "k"), 2*time.Second)
	})
}

func TestCache_ExpiredEntryIsEvictedOnGet(t *testing.T) {
	c := New[key, string]()
	c.Put("k", "v", 10*time.Millisecond, false, 0, 0, 0)

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_PutReplacesEarlierEntry(t *testing.T) {
	c := New[key, string]()
	c.Put("k", "first", 60*time.Second, false, 0, 0, 0)
	c.Put("k", "second", 5*time.Second, false, 0, 0, 0)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestCache_Clear(t *testing.T) {
	c := New[key, string]()
	c.Put("a", "1", time.Minute, false, 0, 0, 0)
	c.Put("b", "2", time.Minute, false, 0, 0, 0)

	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

// TestCache_ResolveCollapsesConcurrentMisses exercises the single-flight
// property: many concurrent callers for the same key see compute run
// exactly once.
func TestCache_ResolveCollapsesConcurrentMisses(t *testing.T) {
	c := New[key, string]()

	var calls int32
	var mu sync.Mutex
	compute := func() (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		c.Put("k", "computed", time.Minute, false, 0, 0, 0)
		return "computed", nil
	}

	const n = 20
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, _, err := c.Resolve("k", compute)
			results[i] = v
			errs[i] = err
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), calls, "compute must run exactly once for a collapsed key")
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "computed", results[i])
	}
}

func TestCache_ResolveReturnsCachedValueWithoutCallingCompute(t *testing.T) {
	c := New[key, string]()
	c.Put("k", "cached", time.Minute, false, 0, 0, 0)

	called := false
	v, fromCache, err := c.Resolve("k", func() (string, error) {
		called = true
		return "should not run", nil
	})

	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "cached", v)
	assert.False(t, called)
}

func TestCache_ResolvePropagatesComputeError(t *testing.T) {
	c := New[key, string]()
	wantErr := errors.New("boom")

	_, _, err := c.Resolve("k", func() (string, error) {
		return "", wantErr
	})

	assert.ErrorIs(t, err, wantErr)
}

func timeNow() time.Time { return time.Now() }

// expiryOf peeks at the internal expiry of key for clamp assertions; tests
// live in the same package so this is a direct field read, not a hack.
func expiryOf(t *testing.T, c *Cache[key, string], k key) time.Time {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	require.True(t, ok)
	return e.expiresAt
}
