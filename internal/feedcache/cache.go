// Package feedcache is a short-TTL read-through cache for feed and list
// queries. It exists to absorb duplicate polling traffic from UIs, not to
// serve stale data across meaningful time windows.
package feedcache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL     = 10 * time.Second
	DefaultEntries = 100
)

type entry struct {
	payload    any
	insertedAt time.Time
}

// Cache is a capacity-bounded TTL map. Expiry is enforced lazily on read;
// when full, the oldest insertion is evicted.
type Cache struct {
	ttl     time.Duration
	maxSize int

	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultEntries
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached payload for key, or false when absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.payload, true
}

// Set stores payload under key, evicting the oldest entry when full.
func (c *Cache) Set(key string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.insertedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.insertedAt
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = entry{payload: payload, insertedAt: c.now()}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidatePrefix removes every key starting with prefix. Writers use it
// to drop all cached pages whose filters could match the changed row.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of entries, counting expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key builds a deterministic cache key from feed query filters. Empty
// filter values collapse to "all" so prefix invalidation stays simple.
func Key(kind, ownerID, templateName, status string, limit, offset int) string {
	return fmt.Sprintf("feed:%s:u:%s:w:%s:s:%s:l:%d:o:%d",
		kind,
		orAll(ownerID),
		orAll(templateName),
		orAll(status),
		limit,
		offset,
	)
}

// OwnerPrefix is the invalidation prefix covering every cached page for an
// owner within a kind.
func OwnerPrefix(kind, ownerID string) string {
	return fmt.Sprintf("feed:%s:u:%s:", kind, orAll(ownerID))
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}
