package summary

import "sync"

// Cache memoizes one MonthlyAggregate per month, keyed by the store's
// version counter. Any mutation bumps the version and so invalidates every
// cached month; re-deriving on a stale version never serves stale data.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	version   uint64
	aggregate MonthlyAggregate
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached aggregate for month if it was computed at version.
func (c *Cache) Get(month string, version uint64) (MonthlyAggregate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[month]
	if !ok || entry.version != version {
		return MonthlyAggregate{}, false
	}
	return entry.aggregate, true
}

// Put records the aggregate computed for month at version.
func (c *Cache) Put(month string, version uint64, aggregate MonthlyAggregate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[month] = cacheEntry{version: version, aggregate: aggregate}
}
