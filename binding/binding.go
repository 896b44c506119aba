// Package binding translates calls on user-declared mapper function fields
// into mapped-statement invocations: each func-typed field of a mapper
// struct is implemented with reflect.MakeFunc so that calling it dispatches
// (namespace + "." + method name, named args) through an Invoker and adapts
// the statement's result back into the declared return types. The func
// signature is analysed once; invocation then costs one MakeFunc closure
// call plus the statement dispatch.
package binding

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/viant/sqlmapper/mapererrors"
)

// Invoker is the statement-execution surface a bound mapper dispatches
// through. A session implements it.
type Invoker interface {
	// StatementKind reports the registered statement's kind
	// (select|insert|update|delete) for a fully-qualified id, and whether
	// the id is mapped at all.
	StatementKind(statementID string) (string, bool)
	// Select runs a select statement and fills dest, which must be a
	// pointer to a slice (many) or a pointer to a single value (one).
	Select(ctx context.Context, statementID string, param interface{}, dest interface{}) error
	// Execute runs an insert/update/delete statement and returns the
	// affected row count.
	Execute(ctx context.Context, statementID string, param interface{}) (int64, error)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Bind fills every exported func-typed field of mapperPtr (a pointer to a
// mapper struct) with an implementation dispatching to inv. The statement id
// for a field is resolved as namespace + "." + name, trying the field name
// verbatim, then with its first rune lower-cased, with a `statement` struct
// tag overriding both. Non-func fields are left untouched.
func Bind(inv Invoker, namespace string, mapperPtr interface{}) error {
	rv := reflect.ValueOf(mapperPtr)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: Bind requires a non-nil pointer to a mapper struct, got %T", mapererrors.ErrBinding, mapperPtr)
	}
	structValue := rv.Elem()
	structType := structValue.Type()

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if field.PkgPath != "" || field.Type.Kind() != reflect.Func {
			continue
		}
		statementID, kind, err := resolveStatement(inv, namespace, field)
		if err != nil {
			return err
		}
		method, err := analyze(field, statementID, kind)
		if err != nil {
			return err
		}
		structValue.Field(i).Set(method.makeFunc(inv))
	}
	return nil
}

func resolveStatement(inv Invoker, namespace string, field reflect.StructField) (string, string, error) {
	var candidates []string
	if tag := field.Tag.Get("statement"); tag != "" {
		candidates = []string{qualify(namespace, tag)}
	} else {
		candidates = []string{
			namespace + "." + field.Name,
			namespace + "." + lowerFirst(field.Name),
		}
	}
	for _, id := range candidates {
		if kind, ok := inv.StatementKind(id); ok {
			return id, kind, nil
		}
	}
	return "", "", fmt.Errorf("%w: no mapped statement for %s.%s (tried %s)",
		mapererrors.ErrBinding, namespace, field.Name, strings.Join(candidates, ", "))
}

func qualify(namespace, ref string) string {
	if strings.Contains(ref, ".") {
		return ref
	}
	return namespace + "." + ref
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// method is the pre-analysed shape of one mapper function: where the context
// argument sits, how the remaining arguments become the parameter object,
// and how the statement's outcome becomes the declared return values.
type method struct {
	statementID string
	kind        string
	funcType    reflect.Type

	hasContext bool
	argNames   []string // declared names for multi-arg funcs; nil for 0/1 params

	// select only
	resultType reflect.Type // funcType.Out(0)

	// update only
	countKind reflect.Kind // Int/Int32/Int64/Bool, or Invalid when only error is returned
}

func analyze(field reflect.StructField, statementID, kind string) (*method, error) {
	ft := field.Type
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%w: %s: variadic mapper functions are not supported", mapererrors.ErrBinding, statementID)
	}
	m := &method{statementID: statementID, kind: kind, funcType: ft}

	firstArg := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		m.hasContext = true
		firstArg = 1
	}
	bound := ft.NumIn() - firstArg
	if bound > 1 {
		m.argNames = declaredArgNames(field, bound)
	}

	if ft.NumOut() == 0 || ft.Out(ft.NumOut()-1) != errorType {
		return nil, fmt.Errorf("%w: %s: mapper functions must return error last", mapererrors.ErrBinding, statementID)
	}
	if ft.NumOut() > 2 {
		return nil, fmt.Errorf("%w: %s: at most one result plus error is supported", mapererrors.ErrBinding, statementID)
	}

	if kind == "select" {
		if ft.NumOut() != 2 {
			return nil, fmt.Errorf("%w: %s: select functions must return (result, error)", mapererrors.ErrBinding, statementID)
		}
		m.resultType = ft.Out(0)
		return m, nil
	}

	if ft.NumOut() == 1 {
		m.countKind = reflect.Invalid
		return m, nil
	}
	switch k := ft.Out(0).Kind(); k {
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Bool:
		m.countKind = k
	default:
		return nil, fmt.Errorf("%w: %s: %s functions may return error, or a row count (int/int64) or bool plus error, got %s",
			mapererrors.ErrBinding, statementID, kind, ft.Out(0))
	}
	return m, nil
}

// declaredArgNames resolves the names multi-argument functions bind their
// parameters under: the `args` tag when present, always supplemented with the
// positional param1..paramN names so either spelling works in SQL.
func declaredArgNames(field reflect.StructField, count int) []string {
	names := make([]string, count)
	declared := strings.Split(field.Tag.Get("args"), ",")
	for i := 0; i < count; i++ {
		if i < len(declared) {
			if n := strings.TrimSpace(declared[i]); n != "" {
				names[i] = n
			}
		}
	}
	return names
}

// paramObject folds the bound arguments into the root parameter object: zero
// args yields nil, a single arg passes through untouched, and multiple args
// become a map keyed by declared name plus the positional param1..paramN and
// arg0..argN-1 spellings.
func (m *method) paramObject(args []reflect.Value) interface{} {
	start := 0
	if m.hasContext {
		start = 1
	}
	bound := args[start:]
	switch len(bound) {
	case 0:
		return nil
	case 1:
		return bound[0].Interface()
	}
	param := make(map[string]interface{}, len(bound)*3)
	for i, v := range bound {
		value := v.Interface()
		if m.argNames != nil && m.argNames[i] != "" {
			param[m.argNames[i]] = value
		}
		param[fmt.Sprintf("param%d", i+1)] = value
		param[fmt.Sprintf("arg%d", i)] = value
	}
	return param
}

func (m *method) contextOf(args []reflect.Value) context.Context {
	if m.hasContext {
		if ctx, ok := args[0].Interface().(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

func (m *method) makeFunc(inv Invoker) reflect.Value {
	if m.kind == "select" {
		return reflect.MakeFunc(m.funcType, func(args []reflect.Value) []reflect.Value {
			dest := reflect.New(m.resultType)
			err := inv.Select(m.contextOf(args), m.statementID, m.paramObject(args), dest.Interface())
			return []reflect.Value{dest.Elem(), errorValue(err)}
		})
	}
	return reflect.MakeFunc(m.funcType, func(args []reflect.Value) []reflect.Value {
		count, err := inv.Execute(m.contextOf(args), m.statementID, m.paramObject(args))
		if m.countKind == reflect.Invalid {
			return []reflect.Value{errorValue(err)}
		}
		out := reflect.New(m.funcType.Out(0)).Elem()
		switch m.countKind {
		case reflect.Bool:
			out.SetBool(count > 0)
		default:
			out.SetInt(count)
		}
		return []reflect.Value{out, errorValue(err)}
	})
}

func errorValue(err error) reflect.Value {
	if err == nil {
		return reflect.Zero(errorType)
	}
	return reflect.ValueOf(err)
}
