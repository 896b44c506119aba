package reflection

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type Address struct {
	City string `sqlx:"city"`
}

type Person struct {
	Address
	Name     string `sqlx:"name"`
	Age      int    `sqlx:"age"`
	Internal string `sqlx:"$ign"`
}

func TestCache_DescribeBasic(t *testing.T) {
	c := NewCache()
	d := c.Describe(reflect.TypeOf(Person{}))

	_, ok := d.Property("$ign")
	assert.False(t, ok)

	nameProp, ok := d.Property("name")
	assert.True(t, ok)
	assert.Equal(t, "name", nameProp.Name)

	cityProp, ok := d.Property("city")
	assert.True(t, ok, "embedded struct field should be promoted")
	assert.Equal(t, "city", cityProp.Name)
}

func TestDescriptor_SetGet(t *testing.T) {
	c := NewCache()
	d := c.Describe(reflect.TypeOf(Person{}))

	p := &Person{}
	pv := reflect.ValueOf(p)
	assert.NoError(t, d.Set(pv, "age", reflect.ValueOf(42)))

	got, err := d.Get(pv, "age")
	assert.NoError(t, err)
	assert.Equal(t, 42, got.Interface())
}

func TestCache_Memoized(t *testing.T) {
	c := NewCache()
	d1 := c.Describe(reflect.TypeOf(Person{}))
	d2 := c.Describe(reflect.TypeOf(&Person{}))
	assert.Same(t, d1, d2)
}
