package sqlexec

import "testing"

import "github.com/stretchr/testify/assert"

func TestLocalCache_PutGetClear(t *testing.T) {
	c := NewLocalCache()
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", 42)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	c.Clear()
	_, ok = c.Get("k")
	assert.False(t, ok)
}
