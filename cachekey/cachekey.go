// Package cachekey implements an order-sensitive composite cache identity:
// an accumulating hash/checksum/count triple plus the ordered component
// list itself, so that permutations of the same multiset of components
// never collide.
package cachekey

import (
	"reflect"
)

// Key is the accumulating, order-sensitive composite key. The zero value is
// ready to use and starts from the fixed seed (hash=17, checksum=0, count=0).
type Key struct {
	hash       int64
	checksum   int64
	count      int
	components []interface{}
	null       bool
}

// Null returns the distinguished sentinel "null key" that refuses updates
// and never compares equal to anything (including another Null()).
func Null() *Key {
	return &Key{null: true}
}

// Update folds component into the key. h = hash(component); count++;
// checksum += h; h *= count; hash = 37*hash + h; component is appended.
func (k *Key) Update(component interface{}) {
	if k.null {
		return
	}
	if k.hash == 0 && k.checksum == 0 && k.count == 0 && k.components == nil {
		k.hash = 17
	}
	h := hashOf(component)
	k.count++
	k.checksum += h
	h *= int64(k.count)
	k.hash = 37*k.hash + h
	k.components = append(k.components, component)
}

// UpdateAll folds each component in order.
func (k *Key) UpdateAll(components ...interface{}) {
	for _, c := range components {
		k.Update(c)
	}
}

// Equal reports whether two keys have equal (hash, checksum, count) and
// equal components at every index. Arrays/slices compare structurally.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	if k.null || other.null {
		return false
	}
	if k.hash != other.hash || k.checksum != other.checksum || k.count != other.count {
		return false
	}
	if len(k.components) != len(other.components) {
		return false
	}
	for i := range k.components {
		if !componentsEqual(k.components[i], other.components[i]) {
			return false
		}
	}
	return true
}

// Clone deep-copies the component list so mutating the clone never affects
// the original.
func (k *Key) Clone() *Key {
	c := &Key{hash: k.hash, checksum: k.checksum, count: k.count, null: k.null}
	if k.components != nil {
		c.components = append([]interface{}{}, k.components...)
	}
	return c
}

// New constructs an initialized empty Key (hash=17).
func New() *Key {
	return &Key{hash: 17}
}

// ID renders a canonical string identity suitable for use as a Go map key
// by cache decorators, derived from the same (hash, checksum, count) triple
// that defines Key equality.
func (k *Key) ID() string {
	if k.null {
		return "null"
	}
	b := make([]byte, 0, 48)
	b = appendInt(b, k.hash)
	b = append(b, '|')
	b = appendInt(b, k.checksum)
	b = append(b, '|')
	b = appendInt(b, int64(k.count))
	return string(b)
}

func appendInt(b []byte, v int64) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	if v == 0 {
		return append(b, '0')
	}
	var digits [20]byte
	n := 0
	for v > 0 {
		digits[n] = byte('0' + v%10)
		v /= 10
		n++
	}
	for n > 0 {
		n--
		b = append(b, digits[n])
	}
	return b
}

func componentsEqual(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}

// hashOf is a deterministic, type-dispatching hash used to fold a component
// into the accumulator. It intentionally avoids Go's randomized map/string
// hash seed so identical inputs always produce identical keys across runs,
// since cache keys are derived from a dynamic-SQL render that must itself be
// deterministic.
func hashOf(v interface{}) int64 {
	if v == nil {
		return 0
	}
	switch t := v.(type) {
	case string:
		return fnv64(t)
	case bool:
		if t {
			return 1231
		}
		return 1237
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return int64(t * 1000)
	case float64:
		return int64(t * 1000)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			var h int64 = 1
			for i := 0; i < rv.Len(); i++ {
				h = 31*h + hashOf(rv.Index(i).Interface())
			}
			return h
		default:
			return fnv64(reflectString(v))
		}
	}
}

func reflectString(v interface{}) string {
	return reflect.ValueOf(v).Type().String() + "#" + toString(v)
}

func toString(v interface{}) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return ""
}

func fnv64(s string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return int64(h)
}
