package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLru_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLru(NewPerpetual("t"), 2)
	c.Put("A", 1)
	c.Put("B", 2)
	c.Get("A")
	c.Put("C", 3)

	_, ok := c.Get("A")
	assert.True(t, ok)
	_, ok = c.Get("B")
	assert.False(t, ok)
	_, ok = c.Get("C")
	assert.True(t, ok)
}

func TestFifo_EvictsFirstInserted(t *testing.T) {
	c := NewFifo(NewPerpetual("t"), 2)
	c.Put("A", 1)
	c.Put("B", 2)
	c.Get("A") // access does not protect FIFO entries
	c.Put("C", 3)

	_, ok := c.Get("A")
	assert.False(t, ok)
	_, ok = c.Get("B")
	assert.True(t, ok)
	_, ok = c.Get("C")
	assert.True(t, ok)
}

func TestScheduled_ClearsAfterInterval(t *testing.T) {
	c := NewScheduled(NewPerpetual("t"), 10*time.Millisecond)
	c.Put("A", 1)
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("A")
	assert.False(t, ok)
}

func TestBlocking_SerializesConcurrentMiss(t *testing.T) {
	c := NewBlocking(NewPerpetual("t"))

	var wg sync.WaitGroup
	results := make([]interface{}, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if v, ok := c.Get("k"); ok {
			results[0] = v
			return
		}
		time.Sleep(5 * time.Millisecond)
		c.Put("k", "value")
	}()

	time.Sleep(1 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, ok := c.Get("k")
		if ok {
			results[1] = v
		}
	}()

	wg.Wait()
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestSynchronized_PassThrough(t *testing.T) {
	c := NewSynchronized(NewPerpetual("t"))
	c.Put("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, c.Size())
	assert.True(t, c.Remove("a"))
	assert.Equal(t, 0, c.Size())
}
