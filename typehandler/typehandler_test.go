package typehandler

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_ResolveStable(t *testing.T) {
	r := New()
	h1, err := r.Resolve(reflect.TypeOf(""), "")
	assert.NoError(t, err)
	h2, err := r.Resolve(reflect.TypeOf(""), "")
	assert.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestRegistry_WildcardFallback(t *testing.T) {
	r := New()
	// int has exactly one handler registered with wildcard sqlType; an
	// unrelated sqlType should still resolve via the wildcard rule.
	h, err := r.Resolve(reflect.TypeOf(int(0)), SQLType("BIGINT"))
	assert.NoError(t, err)
	assert.NotNil(t, h)
}

func TestRegistry_MissThenMemoizedMiss(t *testing.T) {
	r := New()
	type Unregistered struct{}
	_, err := r.Resolve(reflect.TypeOf(Unregistered{}), "")
	assert.Error(t, err)
	_, err = r.Resolve(reflect.TypeOf(Unregistered{}), "")
	assert.Error(t, err)
}

func TestColumnToFieldName(t *testing.T) {
	assert.Equal(t, "UserId", ColumnToFieldName("user_id"))
}
