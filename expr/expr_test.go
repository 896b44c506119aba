package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEval_PropertyAndIndex(t *testing.T) {
	bindings := Bindings{
		"a": map[string]interface{}{
			"b": []interface{}{10, 20, 30},
		},
	}
	v, err := Eval("a.b[1]", bindings)
	assert.NoError(t, err)
	assert.Equal(t, 20, v)
}

func TestEval_Truthiness(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy(""))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(1))
}

func TestEval_ComparisonAndLogic(t *testing.T) {
	bindings := Bindings{"age": 10}
	v, err := Eval("age != null and age > 5", bindings)
	assert.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval("age == 10 or age == 20", bindings)
	assert.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEval_FallbackToParameter(t *testing.T) {
	bindings := Bindings{
		"_parameter": map[string]interface{}{"name": "products"},
	}
	v, err := Eval("name", bindings)
	assert.NoError(t, err)
	assert.Equal(t, "products", v)
}

func TestEval_Not(t *testing.T) {
	v, err := Eval("not (age == 5)", Bindings{"age": 10})
	assert.NoError(t, err)
	assert.Equal(t, true, v)
}
