package client

import (
	"strings"
	"sync"
	"sync/atomic"
)

type cacheEntry struct {
	etag string
	body []byte
}

// Cache is the ETag read cache for GET endpoints. An entry is valid from
// its fetch until the next mutation of the same work or of the listing.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Hits returns how many 304 responses were served from the cache.
func (c *Cache) Hits() int64 {
	return c.hits.Load()
}

// Len returns the number of cached URLs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) get(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) put(key, etag string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{etag: etag, body: body}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// InvalidateWork drops the listing, the stats endpoints and every entry
// belonging to workID.
func (c *Cache) InvalidateWork(workID string) {
	base := workPath(workID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		path, _, _ := strings.Cut(key, "?")
		switch {
		case path == pathWorkList,
			path == pathTotalWordCount,
			path == pathTotalProjectCount,
			path == base,
			strings.HasPrefix(path, base+"/"):
			delete(c.entries, key)
		}
	}
}
