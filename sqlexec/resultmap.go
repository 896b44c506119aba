package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/viant/sqlmapper/alias"
	"github.com/viant/sqlmapper/config"
	"github.com/viant/sqlmapper/mapererrors"
	"github.com/viant/sqlmapper/reflection"
	"github.com/viant/sqlmapper/typehandler"
)

// NestedSelector runs a nested <association>/<collection> select= statement
// for the current row's single feeding column value, returning the raw
// mapped result the caller's session produced for that statement id.
// Composite (multi-column) nested-select parameters are out of scope.
type NestedSelector func(ctx context.Context, statementID string, param interface{}) (interface{}, error)

// ResultMapResolver looks up a resultMap by its fully qualified id, the way
// a discriminator case or a resultMap="..." attribute references one.
type ResultMapResolver func(id string) (*config.ResultMap, bool)

// RowMapper maps *sql.Rows into instances of rowType, honouring an explicit
// config.ResultMap when supplied and falling back to column-name automapping
// otherwise.
type RowMapper struct {
	Reflection               *reflection.Cache
	Types                    *typehandler.Registry
	Aliases                  *alias.Registry
	AutoMappingBehavior      string // NONE | PARTIAL | FULL
	MapUnderscoreToCamelCase bool
	ResolveResultMap         ResultMapResolver
	NestedSelect             NestedSelector
}

type rowValues map[string]interface{}

func (v rowValues) get(column string) (interface{}, bool) {
	val, ok := v[strings.ToLower(column)]
	return val, ok
}

func (v rowValues) withPrefix(prefix string) rowValues {
	if prefix == "" {
		return v
	}
	prefix = strings.ToLower(prefix)
	out := rowValues{}
	for k, val := range v {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = val
		}
	}
	return out
}

// MapRows scans every remaining row in rows into a rowType instance,
// applying rm when non-nil, else automapping every column onto rowType's
// properties per AutoMappingBehavior. Consecutive rows sharing the same
// identifier columns (rm's IsID mappings) are folded into one target
// instance (rows with equal ids that are not adjacent are not merged), with
// each contributing row appending to that target's collection properties:
// the accumulator pattern joined one-to-many results need.
func (m *RowMapper) MapRows(ctx context.Context, rows *sql.Rows, rowType reflect.Type, baseMap *config.ResultMap) ([]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: read columns: %v", mapererrors.ErrDataStore, err)
	}

	var results []interface{}
	var lastKey string
	var lastTarget reflect.Value
	haveLast := false

	for rows.Next() {
		values, err := scanRow(rows, columns)
		if err != nil {
			return nil, err
		}

		rm, err := m.resolveDiscriminated(baseMap, values)
		if err != nil {
			return nil, err
		}

		key := idKey(rm, values)
		if key != "" && haveLast && key == lastKey {
			if err := m.applyCollections(ctx, lastTarget, rm, values); err != nil {
				return nil, err
			}
			continue
		}

		target := m.Reflection.Describe(rowType).New()
		if err := m.populate(ctx, target, rowType, rm, values); err != nil {
			return nil, err
		}
		results = append(results, target.Interface())
		lastKey, lastTarget, haveLast = key, target, key != ""
	}
	return results, rows.Err()
}

// MapRow is the exec-context = ONE convenience: it maps at most a single row
// and reports whether one was found.
func (m *RowMapper) MapRow(ctx context.Context, rows *sql.Rows, rowType reflect.Type, baseMap *config.ResultMap) (interface{}, bool, error) {
	all, err := m.MapRows(ctx, rows, rowType, baseMap)
	if err != nil {
		return nil, false, err
	}
	if len(all) == 0 {
		return nil, false, nil
	}
	return all[0], true, nil
}

func scanRow(rows *sql.Rows, columns []string) (rowValues, error) {
	raw := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("%w: scan row: %v", mapererrors.ErrDataStore, err)
	}
	values := make(rowValues, len(columns))
	for i, c := range columns {
		values[strings.ToLower(c)] = raw[i]
	}
	return values, nil
}

func (m *RowMapper) resolveDiscriminated(rm *config.ResultMap, values rowValues) (*config.ResultMap, error) {
	if rm == nil || rm.Discriminator == nil {
		return rm, nil
	}
	raw, _ := values.get(rm.Discriminator.Column)
	caseValue := fmt.Sprintf("%v", raw)
	next, ok := rm.Discriminator.Cases[caseValue]
	if !ok {
		return rm, nil
	}
	nested, ok := m.ResolveResultMap(next)
	if !ok {
		return nil, fmt.Errorf("%w: discriminator case %q refers to unresolved resultMap %q", mapererrors.ErrConfig, caseValue, next)
	}
	return m.resolveDiscriminated(nested, values)
}

func idKey(rm *config.ResultMap, values rowValues) string {
	if rm == nil {
		return ""
	}
	var parts []string
	for _, mp := range rm.Mappings {
		if !mp.IsID {
			continue
		}
		v, _ := values.get(mp.Column)
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\x1f")
}

func (m *RowMapper) populate(ctx context.Context, target reflect.Value, rowType reflect.Type, rm *config.ResultMap, values rowValues) error {
	if rm == nil {
		return m.automap(target, rowType, values)
	}
	descriptor := m.Reflection.Describe(rowType)
	all := append(append([]config.ResultMapping{}, rm.Constructor...), rm.Mappings...)
	for _, mp := range all {
		switch {
		case mp.OfType != "":
			if err := m.setCollection(ctx, target, descriptor, mp, values); err != nil {
				return err
			}
		case mp.NestedSelect != "" || mp.NestedMapID != "" || mp.Nested != nil:
			if err := m.setAssociation(ctx, target, descriptor, mp, values); err != nil {
				return err
			}
		default:
			if err := m.setScalar(target, descriptor, mp, values); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *RowMapper) applyCollections(ctx context.Context, target reflect.Value, rm *config.ResultMap, values rowValues) error {
	if rm == nil {
		return nil
	}
	descriptor := m.Reflection.Describe(target.Type())
	for _, mp := range rm.Mappings {
		if mp.OfType == "" {
			continue
		}
		if err := m.setCollection(ctx, target, descriptor, mp, values); err != nil {
			return err
		}
	}
	return nil
}

func (m *RowMapper) setScalar(target reflect.Value, descriptor *reflection.Descriptor, mp config.ResultMapping, values rowValues) error {
	raw, ok := values.get(mp.Column)
	if !ok || raw == nil {
		return nil
	}
	javaType := m.propertyType(descriptor, mp)
	handler, err := m.Types.Resolve(javaType, typehandler.SQLType(mp.JdbcType))
	if err != nil {
		return err
	}
	converted, err := handler.GetResult(raw)
	if err != nil {
		return fmt.Errorf("%w: convert column %q: %v", mapererrors.ErrType, mp.Column, err)
	}
	return descriptor.Set(target, mp.Property, reflect.ValueOf(converted))
}

func (m *RowMapper) propertyType(descriptor *reflection.Descriptor, mp config.ResultMapping) reflect.Type {
	if mp.JavaType != "" {
		if t, ok := m.Aliases.Resolve(mp.JavaType); ok {
			return t
		}
	}
	if p, ok := descriptor.Property(mp.Property); ok {
		return p.Type
	}
	return reflect.TypeOf("")
}

func (m *RowMapper) setAssociation(ctx context.Context, target reflect.Value, descriptor *reflection.Descriptor, mp config.ResultMapping, values rowValues) error {
	prop, ok := descriptor.Property(mp.Property)
	if !ok {
		return fmt.Errorf("%w: no property %q for association", mapererrors.ErrReflection, mp.Property)
	}
	elemType := prop.Type
	for elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}

	if mp.NestedSelect != "" {
		if m.NestedSelect == nil {
			return fmt.Errorf("%w: association %q declares select %q but no nested selector is configured", mapererrors.ErrBinding, mp.Property, mp.NestedSelect)
		}
		param, _ := values.get(mp.Column)
		if param == nil {
			return nil
		}
		result, err := m.NestedSelect(ctx, mp.NestedSelect, param)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		return descriptor.Set(target, mp.Property, adaptToPointerOrValue(reflect.ValueOf(result), prop.Type))
	}

	nested := mp.Nested
	if nested == nil && mp.NestedMapID != "" {
		resolved, ok := m.ResolveResultMap(mp.NestedMapID)
		if !ok {
			return fmt.Errorf("%w: association %q refers to unresolved resultMap %q", mapererrors.ErrConfig, mp.Property, mp.NestedMapID)
		}
		nested = resolved
	}
	if nested == nil {
		return nil
	}
	scoped := values.withPrefix(mp.ColumnPrefix)
	nestedTarget := m.Reflection.Describe(elemType).New()
	if err := m.populate(ctx, nestedTarget, elemType, nested, scoped); err != nil {
		return err
	}
	return descriptor.Set(target, mp.Property, adaptToPointerOrValue(nestedTarget, prop.Type))
}

func (m *RowMapper) setCollection(ctx context.Context, target reflect.Value, descriptor *reflection.Descriptor, mp config.ResultMapping, values rowValues) error {
	prop, ok := descriptor.Property(mp.Property)
	if !ok || prop.Type.Kind() != reflect.Slice {
		return fmt.Errorf("%w: no slice property %q for collection", mapererrors.ErrReflection, mp.Property)
	}
	elemType := prop.Type.Elem()
	if t, ok := m.Aliases.Resolve(mp.OfType); ok {
		elemType = t
	}

	if mp.NestedSelect != "" {
		if m.NestedSelect == nil {
			return fmt.Errorf("%w: collection %q declares select %q but no nested selector is configured", mapererrors.ErrBinding, mp.Property, mp.NestedSelect)
		}
		param, _ := values.get(mp.Column)
		if param == nil {
			return nil
		}
		result, err := m.NestedSelect(ctx, mp.NestedSelect, param)
		if err != nil {
			return err
		}
		return descriptor.Set(target, mp.Property, coerceSlice(result, prop.Type))
	}

	var nested *config.ResultMap
	if mp.Nested != nil {
		nested = mp.Nested
	} else if mp.NestedMapID != "" {
		resolved, ok := m.ResolveResultMap(mp.NestedMapID)
		if !ok {
			return fmt.Errorf("%w: collection %q refers to unresolved resultMap %q", mapererrors.ErrConfig, mp.Property, mp.NestedMapID)
		}
		nested = resolved
	}

	scoped := values.withPrefix(mp.ColumnPrefix)
	elemTarget := m.Reflection.Describe(elemType).New()
	if nested != nil {
		if err := m.populate(ctx, elemTarget, elemType, nested, scoped); err != nil {
			return err
		}
	} else if err := m.automap(elemTarget, elemType, scoped); err != nil {
		return err
	}

	current, err := descriptor.Get(target, mp.Property)
	if err != nil {
		return err
	}
	appended := reflect.Append(current, adaptToValue(elemTarget, elemType))
	return descriptor.Set(target, mp.Property, appended)
}

// automap sets every column with no explicit mapping onto the matching
// property by name (honouring MapUnderscoreToCamelCase), silently skipping
// columns with no matching property. The "unknown column" case is treated
// as ignore, never as failure. AutoMappingBehavior NONE disables this
// entirely; PARTIAL and FULL are equivalent here since Go result structs
// have no nested-property-path auto-resolution to distinguish them by.
func (m *RowMapper) automap(target reflect.Value, rowType reflect.Type, values rowValues) error {
	if m.AutoMappingBehavior == "NONE" {
		return nil
	}
	descriptor := m.Reflection.Describe(rowType)
	for column, raw := range values {
		if raw == nil {
			continue
		}
		fieldName := column
		if m.MapUnderscoreToCamelCase {
			fieldName = typehandler.ColumnToFieldName(column)
		}
		prop, ok := descriptor.Property(fieldName)
		if !ok {
			continue
		}
		handler, err := m.Types.Resolve(prop.Type, "")
		if err != nil {
			continue
		}
		converted, err := handler.GetResult(raw)
		if err != nil {
			return fmt.Errorf("%w: automap column %q: %v", mapererrors.ErrType, column, err)
		}
		if err := descriptor.Set(target, prop.Name, reflect.ValueOf(converted)); err != nil {
			return err
		}
	}
	return nil
}

func adaptToValue(v reflect.Value, want reflect.Type) reflect.Value {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	for v.Kind() == reflect.Ptr && want.Kind() != reflect.Ptr {
		v = v.Elem()
	}
	if v.Type() != want && v.Type().ConvertibleTo(want) {
		v = v.Convert(want)
	}
	return v
}

func adaptToPointerOrValue(v reflect.Value, want reflect.Type) reflect.Value {
	if want.Kind() == reflect.Ptr && v.Kind() != reflect.Ptr {
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		return ptr
	}
	return adaptToValue(v, want)
}

func coerceSlice(result interface{}, want reflect.Type) reflect.Value {
	rv := reflect.ValueOf(result)
	if rv.IsValid() && rv.Type() == want {
		return rv
	}
	out := reflect.MakeSlice(want, 0, 0)
	if !rv.IsValid() {
		return out
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			out = reflect.Append(out, adaptToValue(rv.Index(i), want.Elem()))
		}
	default:
		out = reflect.Append(out, adaptToValue(rv, want.Elem()))
	}
	return out
}
