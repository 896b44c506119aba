// Package alias implements the case-insensitive short-name registry used by
// configuration XML to reference Go types without a fully-qualified import
// path (typeAliases, parameterType, resultType, javaType attributes).
package alias

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/viant/sqlmapper/mapererrors"
)

// Registry is a case-folded string to reflect.Type table. The zero value is
// not usable; construct with New, which seeds the bootstrap aliases.
type Registry struct {
	byName map[string]reflect.Type
}

// New returns a Registry pre-populated with the fixed bootstrap aliases:
// primitives, boxed scalars, common date/time and container types, plus a
// handful of database-specific names.
func New() *Registry {
	r := &Registry{byName: make(map[string]reflect.Type)}
	for name, t := range bootstrap() {
		r.byName[fold(name)] = t
	}
	return r
}

func fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register binds name to t. Re-registering the same name with an identical
// type is a no-op; re-registering with a different type fails with
// mapererrors.ErrConfig, so a duplicate registration with a different
// target is always rejected.
func (r *Registry) Register(name string, t reflect.Type) error {
	key := fold(name)
	if existing, ok := r.byName[key]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: alias %q already registered for %s, cannot rebind to %s",
			mapererrors.ErrConfig, name, existing, t)
	}
	r.byName[key] = t
	return nil
}

// Resolve returns the type bound to name, case-insensitively. ok is false
// when no such alias exists.
func (r *Registry) Resolve(name string) (reflect.Type, bool) {
	t, ok := r.byName[fold(name)]
	return t, ok
}

// MustResolve is a convenience for call sites that have already validated
// the alias exists (e.g. re-resolving a previously parsed attribute).
func (r *Registry) MustResolve(name string) reflect.Type {
	t, ok := r.Resolve(name)
	if !ok {
		panic("alias: unresolved alias " + name)
	}
	return t
}

func bootstrap() map[string]reflect.Type {
	var (
		b    bool
		i8   int8
		i16  int16
		i32  int32
		i64  int64
		u8   uint8
		u16  uint16
		u32  uint32
		u64  uint64
		f32  float32
		f64  float64
		s    string
		byts []byte
		m    map[string]interface{}
		sl   []interface{}
	)
	return map[string]reflect.Type{
		"string":    reflect.TypeOf(s),
		"byte":      reflect.TypeOf(u8),
		"long":      reflect.TypeOf(i64),
		"short":     reflect.TypeOf(i16),
		"int":       reflect.TypeOf(i32),
		"integer":   reflect.TypeOf(i32),
		"double":    reflect.TypeOf(f64),
		"float":     reflect.TypeOf(f32),
		"boolean":   reflect.TypeOf(b),
		"bool":      reflect.TypeOf(b),
		"byte[]":    reflect.TypeOf(byts),
		"uint8":     reflect.TypeOf(u8),
		"uint16":    reflect.TypeOf(u16),
		"uint32":    reflect.TypeOf(u32),
		"uint64":    reflect.TypeOf(u64),
		"int8":      reflect.TypeOf(i8),
		"int16":     reflect.TypeOf(i16),
		"int32":     reflect.TypeOf(i32),
		"int64":     reflect.TypeOf(i64),
		"float32":   reflect.TypeOf(f32),
		"float64":   reflect.TypeOf(f64),
		"map":        reflect.TypeOf(m),
		"list":       reflect.TypeOf(sl),
		"collection": reflect.TypeOf(sl),
		"date":       reflect.TypeOf(time.Time{}),
		"datetime":   reflect.TypeOf(time.Time{}),
		"timestamp":  reflect.TypeOf(time.Time{}),
		"nullstring": reflect.TypeOf(sql.NullString{}),
		"nullint":    reflect.TypeOf(sql.NullInt64{}),
		"ResultSet":  reflect.TypeOf((*sql.Rows)(nil)).Elem(),
		"DB_VENDOR":  reflect.TypeOf(s),
	}
}
