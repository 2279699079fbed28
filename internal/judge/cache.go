package judge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Key derives the cache key for a (condition, state summary) tuple. The key
// hashes the serialized tuple, not any prompt rendering, so prompt-template
// churn does not invalidate cached verdicts.
func Key(conditionText string, stateSummary string) string {
	h := sha256.New()
	h.Write([]byte(conditionText))
	h.Write([]byte{0})
	h.Write([]byte(stateSummary))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache memoizes verdicts by content hash. Reads are shared; writes are
// serialized, so a cache may be shared across story threads.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Verdict
}

// NewCache creates an empty verdict cache.
func NewCache() *Cache {
	return &Cache{entries: map[string]Verdict{}}
}

// Get returns the cached verdict for the key, if present.
func (c *Cache) Get(key string) (Verdict, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	verdict, ok := c.entries[key]
	return verdict, ok
}

// Put stores a verdict under the key.
func (c *Cache) Put(key string, verdict Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = verdict
}

// Len returns the number of cached verdicts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every cached verdict. The cache is per-process and does not
// survive project reloads.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]Verdict{}
}

// Cached wraps a judge with memoization. Timeout and failure verdicts are
// memoized too, keeping reruns deterministic.
type Cached struct {
	inner Judge
	cache *Cache
}

// NewCached wraps the judge with the given cache. A nil cache allocates a
// private one.
func NewCached(inner Judge, cache *Cache) *Cached {
	if cache == nil {
		cache = NewCache()
	}
	return &Cached{inner: inner, cache: cache}
}

// Evaluate returns the verdict for the tuple, consulting the cache first.
// The second return reports whether the verdict was a cache hit.
func (c *Cached) Evaluate(ctx context.Context, conditionText, stateSummary string) (Verdict, bool, error) {
	key := Key(conditionText, stateSummary)
	if verdict, ok := c.cache.Get(key); ok {
		return verdict, true, nil
	}

	verdict, err := WithDeadline(ctx, c.inner, conditionText, stateSummary)
	c.cache.Put(key, verdict)
	return verdict, false, err
}

// Clear drops the underlying cache contents.
func (c *Cached) Clear() {
	c.cache.Clear()
}
