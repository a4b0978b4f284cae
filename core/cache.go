package core

import (
	"strings"
	"sync"
	"time"
)

// Clock returns the current time. Swappable in tests.
type Clock func() time.Time

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is an in-process expiring key/value store. Entries past their TTL
// are invisible to Get; DeleteExpired reclaims their memory. No background
// goroutine is started, pruning is the caller's concern.
type Cache struct {
	mu         sync.RWMutex
	defaultTTL time.Duration
	now        Clock
	entries    map[string]cacheEntry
}

func NewCache(defaultTTL time.Duration, clock ...Clock) *Cache {
	now := time.Now
	if len(clock) > 0 && clock[0] != nil {
		now = clock[0]
	}
	return &Cache{
		defaultTTL: defaultTTL,
		now:        now,
		entries:    make(map[string]cacheEntry),
	}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (c *Cache) Set(key string, value interface{}) {
	c.SetTTL(key, value, c.defaultTTL)
}

func (c *Cache) SetTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// DeleteExpired removes all entries past their TTL and reports how many went.
func (c *Cache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var count int
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

// CacheKey builds a namespaced cache key out of its parts.
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}
