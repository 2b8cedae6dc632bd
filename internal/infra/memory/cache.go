package memory

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Cache is an in-process implementation of the keyed cache used by the
// allocator, the rate limiter, and the consistency layer. It mirrors the
// Redis semantics the service relies on (SETNX, INCR, per-key expiry) and is
// used for tests and single-instance deployments without Redis.
type Cache struct {
	mu      sync.Mutex
	clock   func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewCache() *Cache {
	return NewCacheWithClock(time.Now)
}

// NewCacheWithClock allows deterministic expiry in tests.
func NewCacheWithClock(clock func() time.Time) *Cache {
	return &Cache{clock: clock, entries: make(map[string]cacheEntry)}
}

func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.liveEntry(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.deadline(ttl)}
	return nil
}

func (c *Cache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.liveEntry(key); ok {
		return false, nil
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: c.deadline(ttl)}
	return true, nil
}

func (c *Cache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Cache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.liveEntry(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	c.entries[key] = cacheEntry{value: strconv.FormatInt(n, 10), expiresAt: entry.expiresAt}
	return n, nil
}

func (c *Cache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.liveEntry(key)
	if !ok {
		return nil
	}
	entry.expiresAt = c.deadline(ttl)
	c.entries[key] = entry
	return nil
}

func (c *Cache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.liveEntry(key)
	if !ok || entry.expiresAt.IsZero() {
		return 0, nil
	}
	return entry.expiresAt.Sub(c.clock()), nil
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.liveEntry(key)
	return ok, nil
}

// liveEntry returns the entry if present and not expired, dropping it lazily
// otherwise. Callers must hold the lock.
func (c *Cache) liveEntry(key string) (cacheEntry, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(c.clock()) {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.clock().Add(ttl)
}
