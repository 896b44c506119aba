package sqlexec

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/viant/sqlmapper/mapererrors"
	"github.com/viant/sqlmapper/reflection"
)

// ApplyGeneratedKey implements the JDBC3-style readback path: after an
// insert with useGeneratedKeys, res.LastInsertId() is written into
// keyProperty on target. Multiple key properties (a comma-separated
// keyProperty attribute) all receive the same single generated value, which
// matches the common single-auto-increment-column case; composite generated
// keys are out of scope.
func ApplyGeneratedKey(res sql.Result, keyProperty string, target interface{}, cache *reflection.Cache) error {
	if keyProperty == "" || target == nil {
		return nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: read generated key: %v", mapererrors.ErrDataStore, err)
	}
	for _, property := range strings.Split(keyProperty, ",") {
		if err := setKeyProperty(strings.TrimSpace(property), reflect.ValueOf(id), target, cache); err != nil {
			return err
		}
	}
	return nil
}

// ApplySelectKeyValue implements the <selectKey> path: value, the single
// scalar result of running the declared select-key statement, is written
// into keyProperty on target: either before the insert (order="BEFORE",
// value already known when the insert statement renders) or after
// (order="AFTER", the common auto-increment-emulating sequence read).
func ApplySelectKeyValue(value interface{}, keyProperty string, target interface{}, cache *reflection.Cache) error {
	if keyProperty == "" || target == nil {
		return nil
	}
	return setKeyProperty(keyProperty, reflect.ValueOf(value), target, cache)
}

func setKeyProperty(keyProperty string, value reflect.Value, target interface{}, cache *reflection.Cache) error {
	if m, ok := target.(map[string]interface{}); ok {
		m[keyProperty] = value.Interface()
		return nil
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("%w: key property target must be a pointer, got %T", mapererrors.ErrReflection, target)
	}
	descriptor := cache.Describe(rv.Type())
	return descriptor.Set(rv, keyProperty, value)
}
