// Package sqlexec implements the executor and interceptor chain: the three
// executor styles (simple/reuse/batch), the session-local first-level cache
// and the second-level cache's transactional write buffer, statement cache
// key construction, generated-key readback, and result-set-to-struct row
// mapping.
package sqlexec

import (
	"context"
	"reflect"
	"sync"
)

// Interceptor wraps one invocation of a target method, deciding whether to
// call Proceed, short-circuit with its own result, or run side effects
// around the call.
type Interceptor interface {
	Intercept(ctx context.Context, inv *Invocation) (interface{}, error)
}

// InterceptorFunc adapts a plain function into an Interceptor.
type InterceptorFunc func(ctx context.Context, inv *Invocation) (interface{}, error)

func (f InterceptorFunc) Intercept(ctx context.Context, inv *Invocation) (interface{}, error) {
	return f(ctx, inv)
}

// Invocation describes the intercepted call: the target type and method it
// was registered against, the arguments it was called with, and the Proceed
// closure that continues to the next interceptor (or the real method) in the
// chain.
type Invocation struct {
	Target  string
	Method  string
	Args    []interface{}
	Proceed func(ctx context.Context) (interface{}, error)
}

type registration struct {
	target      string
	method      string
	argTypes    []reflect.Type
	interceptor Interceptor
}

// Chain holds interceptors registered against a (target type, method name,
// argument types) triple, composed outermost-last: the first interceptor
// registered for a given triple is the outermost wrapper around Proceed.
type Chain struct {
	mu   sync.RWMutex
	regs []registration
}

// NewChain returns an empty interceptor chain.
func NewChain() *Chain {
	return &Chain{}
}

// Register adds interceptor for calls matching target/method/argTypes,
// appended after any interceptor already registered for the same triple so
// registration order is preserved as nesting order.
func (c *Chain) Register(target, method string, argTypes []reflect.Type, interceptor Interceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs = append(c.regs, registration{target: target, method: method, argTypes: argTypes, interceptor: interceptor})
}

// Invoke runs every interceptor registered for (target, method, argTypes) in
// registration order around proceed, returning proceed's result unmodified
// when no interceptor is registered.
func (c *Chain) Invoke(ctx context.Context, target, method string, args []interface{}, proceed func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	c.mu.RLock()
	var matched []Interceptor
	for _, r := range c.regs {
		if r.target == target && r.method == method && argTypesMatch(r.argTypes, args) {
			matched = append(matched, r.interceptor)
		}
	}
	c.mu.RUnlock()

	next := proceed
	for i := len(matched) - 1; i >= 0; i-- {
		interceptor := matched[i]
		innerNext := next
		next = func(ctx context.Context) (interface{}, error) {
			return interceptor.Intercept(ctx, &Invocation{Target: target, Method: method, Args: args, Proceed: innerNext})
		}
	}
	return next(ctx)
}

func argTypesMatch(declared []reflect.Type, args []interface{}) bool {
	if len(declared) == 0 {
		return true
	}
	if len(declared) != len(args) {
		return false
	}
	for i, t := range declared {
		if args[i] == nil {
			continue
		}
		if !reflect.TypeOf(args[i]).AssignableTo(t) {
			return false
		}
	}
	return true
}
