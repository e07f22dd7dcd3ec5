// Package cache provides the record cache: an in-memory TTL store and a
// Redis-backed one sharing the same contract.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a thread-safe in-memory cache with per-key TTL.
// Expired entries are evicted when read; there is no background sweeper.
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time
}

// New creates an empty in-memory cache.
func New() *Memory {
	return &Memory{
		items: make(map[string]entry),
		now:   time.Now,
	}
}

// Get retrieves a value. Returns false if not found or expired; an expired
// entry is removed.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.mu.Lock()
		// re-check: a concurrent Set may have refreshed the key
		if cur, ok := c.items[key]; ok && c.expired(cur) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a value. A ttl <= 0 keeps the entry until cleared.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = e
}

// Delete removes a value from the cache.
func (c *Memory) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Clear drops every entry.
func (c *Memory) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]entry)
}

// Keys lists live (unexpired) keys in sorted order.
func (c *Memory) Keys(_ context.Context) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for k, e := range c.items {
		if !c.expired(e) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len counts stored entries, expired-but-unread ones included.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Memory) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
