package expr

import (
	"fmt"
	"reflect"
	"strconv"
)

// Lookup resolves name in bindings, falling back to the nested "_parameter"
// map when name is not found directly, so `test="age != null"` works whether
// age was bound directly or only reachable via the root parameter object.
func Lookup(b Bindings, name string) (interface{}, error) {
	if v, ok := b[name]; ok {
		return v, nil
	}
	if param, ok := b["_parameter"]; ok {
		if v, err := Navigate(param, name); err == nil {
			return v, nil
		}
	}
	return nil, nil
}

// Navigate resolves one path segment against base: numeric keys index into
// slices/arrays, non-numeric keys look up a map entry or a struct field
// (case-insensitively, honouring an exported reflection.Property-style name).
func Navigate(base interface{}, key interface{}) (interface{}, error) {
	if base == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(base)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	name := fmt.Sprintf("%v", key)
	if idx, isNum := asInt(key); isNum {
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			if idx < 0 || idx >= rv.Len() {
				return nil, fmt.Errorf("expr: index %d out of range", idx)
			}
			return rv.Index(idx).Interface(), nil
		case reflect.Map:
			return mapLookup(rv, name)
		}
	}

	switch rv.Kind() {
	case reflect.Map:
		return mapLookup(rv, name)
	case reflect.Struct:
		return structLookup(rv, name)
	default:
		return nil, fmt.Errorf("expr: cannot navigate into %s with key %v", rv.Kind(), key)
	}
}

func mapLookup(rv reflect.Value, name string) (interface{}, error) {
	for _, k := range rv.MapKeys() {
		if fmt.Sprintf("%v", k.Interface()) == name {
			return rv.MapIndex(k).Interface(), nil
		}
	}
	return nil, nil
}

func structLookup(rv reflect.Value, name string) (interface{}, error) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if f.Name == name || f.Tag.Get("sqlx") == name || f.Tag.Get("db") == name {
			return rv.Field(i).Interface(), nil
		}
	}
	// case-insensitive fallback
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if sameFold(f.Name, name) {
			return rv.Field(i).Interface(), nil
		}
	}
	return nil, nil
}

func sameFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func asInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func compare(op string, l, r interface{}) (bool, error) {
	if lf, rf, ok := asFloats(l, r); ok {
		switch op {
		case "==", "=":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}

	if op == "==" || op == "=" {
		return equalLoose(l, r), nil
	}
	if op == "!=" {
		return !equalLoose(l, r), nil
	}

	ls, rs := fmt.Sprintf("%v", l), fmt.Sprintf("%v", r)
	switch op {
	case ">":
		return ls > rs, nil
	case ">=":
		return ls >= rs, nil
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	}
	return false, fmt.Errorf("expr: unsupported operator %q", op)
}

func equalLoose(l, r interface{}) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	if lf, rf, ok := asFloats(l, r); ok {
		return lf == rf
	}
	return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r)
}

func asFloats(l, r interface{}) (float64, float64, bool) {
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	return lf, rf, lok && rok
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
