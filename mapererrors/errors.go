// Package mapererrors declares the sentinel error kinds named in the design:
// configuration, binding, reflection, type-handling, cache and data-store
// failures. Call sites wrap one of these with fmt.Errorf("...: %w", Kind) so
// callers can classify a failure with errors.Is without string matching.
package mapererrors

import "errors"

var (
	// ErrConfig covers malformed XML, unknown elements, missing required
	// attributes, alias collisions and unresolved "incomplete" references
	// still unresolved at fixed-point.
	ErrConfig = errors.New("configuration error")

	// ErrBinding covers mapper methods with no matching statement id,
	// unsupported return types, and nil returned from a method whose return
	// type cannot represent nil.
	ErrBinding = errors.New("binding error")

	// ErrReflection covers missing properties and ambiguous getter/setter
	// resolution discovered at invocation time.
	ErrReflection = errors.New("reflection error")

	// ErrType covers missing type handlers and enum handler lookup failure.
	ErrType = errors.New("type handler error")

	// ErrCache covers serialization failures and cache misconfiguration.
	ErrCache = errors.New("cache error")

	// ErrDataStore covers driver-reported failures, connection validation
	// failures and exhausted bad-connection tolerance.
	ErrDataStore = errors.New("data store error")

	// ErrPool is a DataStore failure specific to exhausting pool retries; kept
	// distinct from ErrDataStore so callers can tell apart "the database
	// rejected the call" from "the pool could not hand out a connection at
	// all".
	ErrPool = errors.New("pool error")
)
