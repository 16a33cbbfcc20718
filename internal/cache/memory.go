package cache

import (
	"bytes"
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is an in-process Cache. Expired entries are swept once a
// minute until Close.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates an empty cache and starts its sweeper.
func NewMemoryCache() *MemoryCache {
	c := newMemoryCache(time.Now)
	go c.sweep(time.Minute)
	return c
}

func newMemoryCache(now func() time.Time) *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: now, stop: make(chan struct{})}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil, ErrCacheMiss
	}
	return bytes.Clone(e.value), nil
}

// Set implements Cache. A non-positive ttl never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.entry(value, ttl)
	return nil
}

// SetNX implements Cache.
func (c *MemoryCache) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && !e.expired(c.now()) {
		return false, nil
	}
	c.entries[key] = c.entry(value, ttl)
	return true, nil
}

func (c *MemoryCache) entry(value []byte, ttl time.Duration) cacheEntry {
	e := cacheEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	return e
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close stops the sweeper.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}
