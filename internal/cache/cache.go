// SPDX-License-Identifier: MIT

// Package cache provides a typed in-memory cache with TTL support.
package cache

import (
	"sync"
	"time"
)

// Cache provides thread-safe caching with expiration support.
type Cache[V any] interface {
	// Get retrieves a value from the cache. The second result is false if
	// the key is missing or expired.
	Get(key string) (V, bool)
	// Set stores a value in the cache with the specified TTL.
	Set(key string, value V, ttl time.Duration)
	// Delete removes a value from the cache.
	Delete(key string)
	// Clear removes all values from the cache.
	Clear()
	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache performance metrics.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry[V any] struct {
	value      V
	expiration time.Time
}

func (e *entry[V]) isExpired() bool {
	return time.Now().After(e.expiration)
}

type memoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	stats   Stats
	janitor *janitor[V]
}

// NewMemory creates an in-memory cache with automatic cleanup. A zero
// cleanupInterval disables the background janitor.
func NewMemory[V any](cleanupInterval time.Duration) Cache[V] {
	c := &memoryCache[V]{entries: make(map[string]*entry[V])}
	if cleanupInterval > 0 {
		c.janitor = &janitor[V]{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, found := c.entries[key]
	if !found || e.isExpired() {
		c.stats.Misses++
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[V]{value: value, expiration: time.Now().Add(ttl)}
	c.stats.Sets++
}

func (c *memoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
}

func (c *memoryCache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *memoryCache[V]) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for key, e := range c.entries {
		if e.isExpired() {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// Stop stops the background cleanup goroutine.
func (c *memoryCache[V]) Stop() {
	if c.janitor != nil {
		c.janitor.stop <- struct{}{}
	}
}

type janitor[V any] struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor[V]) run(c *memoryCache[V]) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}
