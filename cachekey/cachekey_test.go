package cachekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_OrderSensitive(t *testing.T) {
	a := New()
	a.Update("x")
	a.Update("y")

	b := New()
	b.Update("y")
	b.Update("x")

	assert.False(t, a.Equal(b))
}

func TestKey_SameOrderEqual(t *testing.T) {
	k1 := New()
	k1.Update("select * from t where id=?")
	k1.Update(42)

	k2 := New()
	k2.Update("select * from t where id=?")
	k2.Update(42)

	assert.True(t, k1.Equal(k2))

	k3 := New()
	k3.Update(42)
	k3.Update("select * from t where id=?")
	assert.False(t, k1.Equal(k3))
}

func TestKey_Clone(t *testing.T) {
	k := New()
	k.Update("a")
	clone := k.Clone()
	assert.True(t, k.Equal(clone))

	clone.Update("b")
	assert.False(t, k.Equal(clone))
	assert.Equal(t, 1, k.count)
}

func TestKey_Null(t *testing.T) {
	n := Null()
	n.Update("anything")
	assert.False(t, n.Equal(Null()))
}
