package cache

import "sync"

// Blocking models "per-key single-flight": a Get miss acquires a per-key
// barrier that is held until the matching Put (or an explicit Release on the
// failure path), serializing concurrent loads of the same key rather than
// letting every caller hit the database. It is meant to sit as the outermost
// decorator the executor sees, ahead of any eviction or synchronization
// layer.
type Blocking struct {
	delegate Cache
	mu       sync.Mutex
	barriers map[string]*barrier
}

type barrier struct {
	done chan struct{}
}

// NewBlocking wraps delegate with per-key single-flight semantics.
func NewBlocking(delegate Cache) *Blocking {
	return &Blocking{delegate: delegate, barriers: make(map[string]*barrier)}
}

func (c *Blocking) ID() string { return c.delegate.ID() }
func (c *Blocking) Size() int  { return c.delegate.Size() }

// Get returns the cached value if present. The first miss for a key sets up
// its barrier and returns at once, leaving that caller to load the value and
// Put (or Release) it. A miss while that barrier is held blocks until the
// matching Put/Release, then reads the delegate once more.
func (c *Blocking) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	if v, ok := c.delegate.Get(key); ok {
		c.mu.Unlock()
		return v, true
	}
	b, inflight := c.barriers[key]
	if !inflight {
		b = &barrier{done: make(chan struct{})}
		c.barriers[key] = b
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Unlock()

	<-b.done
	return c.delegate.Get(key)
}

// Put stores value and releases any barrier held for key.
func (c *Blocking) Put(key string, value interface{}) {
	c.mu.Lock()
	c.delegate.Put(key, value)
	c.releaseLocked(key)
	c.mu.Unlock()
}

// Release unblocks waiters for key without storing a value. This is the
// failure path, so a load error can never deadlock every other caller of
// that key.
func (c *Blocking) Release(key string) {
	c.mu.Lock()
	c.releaseLocked(key)
	c.mu.Unlock()
}

func (c *Blocking) releaseLocked(key string) {
	if b, ok := c.barriers[key]; ok {
		close(b.done)
		delete(c.barriers, key)
	}
}

func (c *Blocking) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Remove(key)
}

func (c *Blocking) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
}
