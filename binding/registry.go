package binding

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/viant/sqlmapper/mapererrors"
)

// Registry records which namespace implements each mapper struct type, so a
// session can hand back a bound mapper from the prototype's type alone. One
// registry is shared by every session a factory opens; registration happens
// once at configuration time.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: map[reflect.Type]string{}}
}

// Register associates the mapper struct type of prototype (a struct or
// pointer to struct carrying func fields) with namespace. Registering the
// same type against a different namespace fails.
func (r *Registry) Register(namespace string, prototype interface{}) error {
	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: mapper prototype must be a struct, got %T", mapererrors.ErrBinding, prototype)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[t]; ok && existing != namespace {
		return fmt.Errorf("%w: mapper type %s already registered for namespace %q", mapererrors.ErrBinding, t, existing)
	}
	r.byType[t] = namespace
	return nil
}

// NamespaceFor reports the namespace registered for a mapper struct type.
func (r *Registry) NamespaceFor(t reflect.Type) (string, bool) {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.byType[t]
	return ns, ok
}
