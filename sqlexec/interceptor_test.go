package sqlexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChain_WrapsInRegistrationOrder(t *testing.T) {
	chain := NewChain()
	var order []string

	chain.Register("Executor", "query", nil, InterceptorFunc(func(ctx context.Context, inv *Invocation) (interface{}, error) {
		order = append(order, "outer-before")
		v, err := inv.Proceed(ctx)
		order = append(order, "outer-after")
		return v, err
	}))
	chain.Register("Executor", "query", nil, InterceptorFunc(func(ctx context.Context, inv *Invocation) (interface{}, error) {
		order = append(order, "inner-before")
		v, err := inv.Proceed(ctx)
		order = append(order, "inner-after")
		return v, err
	}))

	result, err := chain.Invoke(context.Background(), "Executor", "query", nil, func(ctx context.Context) (interface{}, error) {
		order = append(order, "target")
		return "done", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, []string{"outer-before", "inner-before", "target", "inner-after", "outer-after"}, order)
}

func TestChain_IgnoresNonMatchingRegistration(t *testing.T) {
	chain := NewChain()
	called := false
	chain.Register("Executor", "update", nil, InterceptorFunc(func(ctx context.Context, inv *Invocation) (interface{}, error) {
		called = true
		return inv.Proceed(ctx)
	}))

	result, err := chain.Invoke(context.Background(), "Executor", "query", nil, func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.False(t, called)
}
