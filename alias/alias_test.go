package alias

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_CaseInsensitiveResolve(t *testing.T) {
	r := New()

	cases := []string{"STRING", "String", "string"}
	var want reflect.Type
	for i, name := range cases {
		got, ok := r.Resolve(name)
		assert.True(t, ok, name)
		if i == 0 {
			want = got
		}
		assert.Equal(t, want, got, name)
	}
}

func TestRegistry_RegisterCollision(t *testing.T) {
	r := New()

	type A struct{}
	type B struct{}

	assert.NoError(t, r.Register("widget", reflect.TypeOf(A{})))
	// re-registering same type is fine
	assert.NoError(t, r.Register("widget", reflect.TypeOf(A{})))
	// re-registering a different type fails
	assert.Error(t, r.Register("widget", reflect.TypeOf(B{})))
}

func TestRegistry_UnknownAlias(t *testing.T) {
	r := New()
	_, ok := r.Resolve("NoSuchAlias")
	assert.False(t, ok)
}
