package secrets

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value      map[string]string
	expiration time.Time
}

// cache holds decoded secret documents until their TTL passes.
type cache struct {
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

func newCache(ttl time.Duration) *cache {
	return &cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *cache) get(id string) (map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiration) {
		delete(c.entries, id)
		return nil, false
	}
	return entry.value, true
}

func (c *cache) set(id string, value map[string]string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{value: value, expiration: c.now().Add(c.ttl)}
}
