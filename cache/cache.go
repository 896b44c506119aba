// Package cache implements the second-level cache interface and its
// composable decorators: Perpetual, Lru, Fifo, Scheduled, Serialized, Soft,
// Weak, Blocking, Synchronized, Logging. Each decorator wraps an arbitrary
// inner Cache, so a mapper's <cache> attributes compose freely.
package cache

import (
	"container/list"
	"encoding/gob"
	"bytes"
	"log"
	"sync"
	"time"
)

// Cache is the minimal second-level cache contract: id, size, put, get,
// remove, clear.
type Cache interface {
	ID() string
	Size() int
	Put(key string, value interface{})
	Get(key string) (interface{}, bool)
	Remove(key string) bool
	Clear()
}

// Perpetual is the innermost decorator: an unbounded backing map.
type Perpetual struct {
	id   string
	data map[string]interface{}
}

// NewPerpetual returns a Perpetual cache identified by id.
func NewPerpetual(id string) *Perpetual {
	return &Perpetual{id: id, data: make(map[string]interface{})}
}

func (c *Perpetual) ID() string   { return c.id }
func (c *Perpetual) Size() int    { return len(c.data) }
func (c *Perpetual) Put(key string, value interface{}) { c.data[key] = value }
func (c *Perpetual) Get(key string) (interface{}, bool) {
	v, ok := c.data[key]
	return v, ok
}
func (c *Perpetual) Remove(key string) bool {
	_, ok := c.data[key]
	delete(c.data, key)
	return ok
}
func (c *Perpetual) Clear() { c.data = make(map[string]interface{}) }

// Lru decorates delegate with bounded, access-ordered eviction: the least
// recently used key is evicted from delegate when an insertion would exceed
// size. A container/list plus a key-to-element map keeps both Get and Put
// O(1).
type Lru struct {
	delegate Cache
	size     int
	ll       *list.List
	elements map[string]*list.Element
}

// NewLru wraps delegate with LRU eviction bounded to size entries.
func NewLru(delegate Cache, size int) *Lru {
	if size <= 0 {
		size = 1
	}
	return &Lru{delegate: delegate, size: size, ll: list.New(), elements: make(map[string]*list.Element)}
}

func (c *Lru) ID() string { return c.delegate.ID() }
func (c *Lru) Size() int  { return c.delegate.Size() }

func (c *Lru) Put(key string, value interface{}) {
	c.delegate.Put(key, value)
	if el, ok := c.elements[key]; ok {
		c.ll.MoveToFront(el)
		return
	}
	c.elements[key] = c.ll.PushFront(key)
	if c.ll.Len() > c.size {
		c.evictOldest()
	}
}

func (c *Lru) Get(key string) (interface{}, bool) {
	v, ok := c.delegate.Get(key)
	if !ok {
		return nil, false
	}
	if el, ok := c.elements[key]; ok {
		c.ll.MoveToFront(el)
	}
	return v, true
}

func (c *Lru) Remove(key string) bool {
	if el, ok := c.elements[key]; ok {
		c.ll.Remove(el)
		delete(c.elements, key)
	}
	return c.delegate.Remove(key)
}

func (c *Lru) Clear() {
	c.ll.Init()
	c.elements = make(map[string]*list.Element)
	c.delegate.Clear()
}

func (c *Lru) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	key := oldest.Value.(string)
	c.ll.Remove(oldest)
	delete(c.elements, key)
	c.delegate.Remove(key)
}

// Fifo decorates delegate with bounded insertion-order eviction: on overflow
// the first-inserted key is evicted regardless of access pattern.
type Fifo struct {
	delegate Cache
	size     int
	queue    *list.List
	present  map[string]*list.Element
}

// NewFifo wraps delegate with FIFO eviction bounded to size entries.
func NewFifo(delegate Cache, size int) *Fifo {
	if size <= 0 {
		size = 1
	}
	return &Fifo{delegate: delegate, size: size, queue: list.New(), present: make(map[string]*list.Element)}
}

func (c *Fifo) ID() string { return c.delegate.ID() }
func (c *Fifo) Size() int  { return c.delegate.Size() }

func (c *Fifo) Put(key string, value interface{}) {
	c.delegate.Put(key, value)
	if _, ok := c.present[key]; !ok {
		c.present[key] = c.queue.PushBack(key)
		if c.queue.Len() > c.size {
			oldest := c.queue.Front()
			okey := oldest.Value.(string)
			c.queue.Remove(oldest)
			delete(c.present, okey)
			c.delegate.Remove(okey)
		}
	}
}

func (c *Fifo) Get(key string) (interface{}, bool) { return c.delegate.Get(key) }

func (c *Fifo) Remove(key string) bool {
	if el, ok := c.present[key]; ok {
		c.queue.Remove(el)
		delete(c.present, key)
	}
	return c.delegate.Remove(key)
}

func (c *Fifo) Clear() {
	c.queue.Init()
	c.present = make(map[string]*list.Element)
	c.delegate.Clear()
}

// Scheduled decorates delegate so that get/put/remove/size first clear the
// whole cache if clearInterval has elapsed since the last clear.
type Scheduled struct {
	delegate      Cache
	clearInterval time.Duration
	lastClear     time.Time
	mu            sync.Mutex
}

// NewScheduled wraps delegate, clearing it wholesale every interval.
func NewScheduled(delegate Cache, interval time.Duration) *Scheduled {
	return &Scheduled{delegate: delegate, clearInterval: interval, lastClear: time.Now()}
}

func (c *Scheduled) maybeClear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastClear) >= c.clearInterval {
		c.delegate.Clear()
		c.lastClear = time.Now()
	}
}

func (c *Scheduled) ID() string { return c.delegate.ID() }
func (c *Scheduled) Size() int    { c.maybeClear(); return c.delegate.Size() }
func (c *Scheduled) Put(key string, value interface{}) { c.maybeClear(); c.delegate.Put(key, value) }
func (c *Scheduled) Get(key string) (interface{}, bool) { c.maybeClear(); return c.delegate.Get(key) }
func (c *Scheduled) Remove(key string) bool              { c.maybeClear(); return c.delegate.Remove(key) }
func (c *Scheduled) Clear() {
	c.mu.Lock()
	c.lastClear = time.Now()
	c.mu.Unlock()
	c.delegate.Clear()
}

// Serialized round-trips values through gob encoding on put/get, decoupling
// the stored instance from the caller's: a mutation to a value returned
// from Get can never corrupt what is cached.
type Serialized struct {
	delegate Cache
}

// NewSerialized wraps delegate with a gob encode/decode round trip.
func NewSerialized(delegate Cache) *Serialized { return &Serialized{delegate: delegate} }

func (c *Serialized) ID() string { return c.delegate.ID() }
func (c *Serialized) Size() int  { return c.delegate.Size() }

func (c *Serialized) Put(key string, value interface{}) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		log.Printf("cache: serialize %q failed: %v", key, err)
		return
	}
	c.delegate.Put(key, buf.Bytes())
}

func (c *Serialized) Get(key string) (interface{}, bool) {
	raw, ok := c.delegate.Get(key)
	if !ok {
		return nil, false
	}
	bs, ok := raw.([]byte)
	if !ok {
		return raw, true
	}
	var value interface{}
	if err := gob.NewDecoder(bytes.NewReader(bs)).Decode(&value); err != nil {
		log.Printf("cache: deserialize %q failed: %v", key, err)
		return nil, false
	}
	return value, true
}

func (c *Serialized) Remove(key string) bool { return c.delegate.Remove(key) }
func (c *Serialized) Clear()                 { c.delegate.Clear() }

// Soft models the GC-sensitive "soft reference" cache as a fixed-capacity
// LRU: Go has no soft references, so rather than fabricate the semantics
// this degrades predictably to bounded retention.
func Soft(delegate Cache, capacity int) Cache {
	return NewLru(delegate, capacity)
}

// Weak models the GC-sensitive "weak reference" cache as a no-op wrapper
// around delegate, logging once that weak-reference semantics are
// unavailable, rather than fabricating behavior Go cannot express.
type Weak struct {
	delegate Cache
	warned   bool
	mu       sync.Mutex
}

// NewWeak wraps delegate with a one-time warning and otherwise passes every
// call straight through.
func NewWeak(delegate Cache) *Weak {
	w := &Weak{delegate: delegate}
	w.warnOnce()
	return w
}

func (c *Weak) warnOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.warned {
		log.Printf("cache %q: WEAK eviction requested but Go has no weak references; falling back to Perpetual retention", c.delegate.ID())
		c.warned = true
	}
}

func (c *Weak) ID() string                               { return c.delegate.ID() }
func (c *Weak) Size() int                                 { return c.delegate.Size() }
func (c *Weak) Put(key string, value interface{})         { c.delegate.Put(key, value) }
func (c *Weak) Get(key string) (interface{}, bool)        { return c.delegate.Get(key) }
func (c *Weak) Remove(key string) bool                    { return c.delegate.Remove(key) }
func (c *Weak) Clear()                                     { c.delegate.Clear() }

// Synchronized guards delegate with a single coarse mutex, making it safe
// for concurrent use by sibling sessions against a shared second-level
// cache.
type Synchronized struct {
	mu       sync.Mutex
	delegate Cache
}

// NewSynchronized wraps delegate with a coarse lock.
func NewSynchronized(delegate Cache) *Synchronized { return &Synchronized{delegate: delegate} }

func (c *Synchronized) ID() string { return c.delegate.ID() }
func (c *Synchronized) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Size()
}
func (c *Synchronized) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Put(key, value)
}
func (c *Synchronized) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Get(key)
}
func (c *Synchronized) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Remove(key)
}
func (c *Synchronized) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
}

// Logging instruments delegate with hit/miss counters, exposed for
// diagnostics, logging only at the process boundary.
type Logging struct {
	delegate Cache
	hits     int64
	misses   int64
	mu       sync.Mutex
}

// NewLogging wraps delegate with hit/miss instrumentation.
func NewLogging(delegate Cache) *Logging { return &Logging{delegate: delegate} }

func (c *Logging) ID() string { return c.delegate.ID() }
func (c *Logging) Size() int  { return c.delegate.Size() }
func (c *Logging) Put(key string, value interface{}) { c.delegate.Put(key, value) }
func (c *Logging) Get(key string) (interface{}, bool) {
	v, ok := c.delegate.Get(key)
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	return v, ok
}
func (c *Logging) Remove(key string) bool { return c.delegate.Remove(key) }
func (c *Logging) Clear()                 { c.delegate.Clear() }

// HitRatio reports cache effectiveness for logging/metrics.
func (c *Logging) HitRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
