package sqlexec

import "sync"

// LocalCache is the session-scoped first-level cache: every query result
// observed during a session is kept here keyed by its cache key's canonical
// ID, and the whole thing is dropped on any update statement, on
// flushCacheOnExecute, and on commit/rollback/close.
type LocalCache struct {
	mu   sync.Mutex
	data map[string]interface{}
}

// NewLocalCache returns an empty, ready-to-use LocalCache.
func NewLocalCache() *LocalCache {
	return &LocalCache{data: make(map[string]interface{})}
}

// Get returns the cached value for id, if present.
func (c *LocalCache) Get(id string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[id]
	return v, ok
}

// Put stores value under id.
func (c *LocalCache) Put(id string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = value
}

// Clear drops every entry, used on update statements and session
// commit/rollback/close.
func (c *LocalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]interface{})
}
