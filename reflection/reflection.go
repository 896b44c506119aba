// Package reflection is a per-type metadata cache: readable/writable
// properties, getter/setter invocation handles, effective field types with
// embedded structs resolved, and the default constructor.
package reflection

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/viant/sqlmapper/mapererrors"
)

// Property describes one accessible field/getter-setter pair on a type.
type Property struct {
	Name      string       // exported, canonical case
	Type      reflect.Type // effective get/set type, generics resolved
	Index     []int        // reflect.Value.FieldByIndex path; nil if accessor-only
	ambiguous string       // non-empty => invocation-time ReflectionError with this message
}

// Descriptor is the immutable, per-type metadata record. Descriptors are
// cached process-wide and are safe for concurrent read-only use once built.
type Descriptor struct {
	Type           reflect.Type
	byName         map[string]*Property // canonical name -> property
	byLowerName    map[string]*Property // lower(name) -> property, case-insensitive lookup
	hasDefaultCtor bool
}

// Property looks up a property by name, case-insensitively.
func (d *Descriptor) Property(name string) (*Property, bool) {
	if p, ok := d.byName[name]; ok {
		return p, true
	}
	p, ok := d.byLowerName[strings.ToLower(name)]
	return p, ok
}

// Properties returns all known properties in deterministic (sorted) order.
func (d *Descriptor) Properties() []*Property {
	out := make([]*Property, 0, len(d.byName))
	for _, p := range d.byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// New allocates a zero value of the descriptor's type, unwrapping to a
// pointer the way mapped statements expect a fresh row target.
func (d *Descriptor) New() reflect.Value {
	return reflect.New(d.Type)
}

// Get returns the property's value from target, a struct value or a pointer
// to one. An ambiguous property fails only now, at invocation time.
func (d *Descriptor) Get(target reflect.Value, name string) (reflect.Value, error) {
	p, ok := d.Property(name)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: no property %q on %s", mapererrors.ErrReflection, name, d.Type)
	}
	if p.ambiguous != "" {
		return reflect.Value{}, fmt.Errorf("%w: %s", mapererrors.ErrReflection, p.ambiguous)
	}
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	return target.FieldByIndex(p.Index), nil
}

// Set assigns value into the named property of target (a pointer to struct).
func (d *Descriptor) Set(target reflect.Value, name string, value reflect.Value) error {
	p, ok := d.Property(name)
	if !ok {
		return fmt.Errorf("%w: no property %q on %s", mapererrors.ErrReflection, name, d.Type)
	}
	if p.ambiguous != "" {
		return fmt.Errorf("%w: %s", mapererrors.ErrReflection, p.ambiguous)
	}
	if target.Kind() != reflect.Ptr {
		return fmt.Errorf("%w: Set requires a pointer target for %s", mapererrors.ErrReflection, d.Type)
	}
	field := target.Elem().FieldByIndex(p.Index)
	if !field.CanSet() {
		return fmt.Errorf("%w: property %q on %s is not settable", mapererrors.ErrReflection, name, d.Type)
	}
	if value.Type() != field.Type() && value.Type().ConvertibleTo(field.Type()) {
		value = value.Convert(field.Type())
	}
	field.Set(value)
	return nil
}

// Cache memoizes Descriptors per concrete type. Safe for concurrent use.
type Cache struct {
	mu   sync.RWMutex
	byType map[reflect.Type]*Descriptor
}

// NewCache returns an empty, ready-to-use Cache.
func NewCache() *Cache {
	return &Cache{byType: make(map[reflect.Type]*Descriptor)}
}

// Describe returns the cached Descriptor for t, building and storing one on
// first use. t may be supplied as a pointer or struct type; the descriptor
// always describes the underlying struct.
func (c *Cache) Describe(t reflect.Type) *Descriptor {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c.mu.RLock()
	d, ok := c.byType[t]
	c.mu.RUnlock()
	if ok {
		return d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.byType[t]; ok {
		return d
	}
	d = build(t)
	c.byType[t] = d
	return d
}

// build walks t's exported fields once, excluding "$"-prefixed names and the
// reserved class/serialVersionUID identifiers, and records any same-name
// conflict between embedded/parent fields as ambiguous rather than silently
// picking a winner: the failure must surface at invocation, not at
// descriptor build time.
func build(t reflect.Type) *Descriptor {
	d := &Descriptor{
		Type:        t,
		byName:      make(map[string]*Property),
		byLowerName: make(map[string]*Property),
	}
	if t.Kind() != reflect.Struct {
		return d
	}

	// default constructor exists iff the type is a plain struct: Go always
	// supports reflect.New, so this is true whenever we get this far; kept as
	// a field to let callers branch if a future "requires explicit factory"
	// kind is added.
	d.hasDefaultCtor = true

	walkFields(t, nil, d)

	for name, p := range d.byName {
		d.byLowerName[strings.ToLower(name)] = p
	}
	return d
}

func walkFields(t reflect.Type, prefix []int, d *Descriptor) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		index := append(append([]int{}, prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			walkFields(f.Type, index, d)
			continue
		}

		name := propertyName(f)
		if strings.HasPrefix(name, "$") || name == "class" || name == "serialVersionUID" {
			continue
		}
		if existing, ok := d.byName[name]; ok {
			d.byName[name] = &Property{
				Name: name,
				Type: f.Type,
				ambiguous: fmt.Sprintf(
					"ambiguous property %q on %s: both %v and %v expose it", name, d.Type, existing.Index, index),
			}
			continue
		}
		d.byName[name] = &Property{Name: name, Type: f.Type, Index: index}
	}
}

// propertyName honours an explicit `sqlx:"name"` or `db:"name"` tag before
// falling back to the Go field name.
func propertyName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("sqlx"); ok && tag != "" && tag != "-" {
		return strings.SplitN(tag, ",", 2)[0]
	}
	if tag, ok := f.Tag.Lookup("db"); ok && tag != "" && tag != "-" {
		return strings.SplitN(tag, ",", 2)[0]
	}
	return f.Name
}
