package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/viant/sqlx/io/read"

	"github.com/viant/sqlmapper/mapererrors"
)

// AutoReader runs plain automapped selects through sqlx's reader at the
// *sql.DB boundary: read.New derives the column-to-field matching and the
// scanning plan for the target struct type, so this path hand-rolls
// nothing. It serves reads that need no transaction demarcation and no
// per-session statement handles; explicit result maps, nested results and
// discriminators go through RowMapper over the session's own connection.
type AutoReader struct {
	DB    *sql.DB
	Chain *Chain
}

// QueryAll executes sqlText with args and returns every row as a *T for row
// type T, routed through the interceptor chain under ("Executor",
// "queryAll").
func (r *AutoReader) QueryAll(ctx context.Context, sqlText string, args []interface{}, rowType reflect.Type) ([]interface{}, error) {
	for rowType.Kind() == reflect.Ptr {
		rowType = rowType.Elem()
	}
	newRecord := func() interface{} {
		return reflect.New(rowType).Interface()
	}
	chain := r.Chain
	if chain == nil {
		chain = NewChain()
	}
	result, err := chain.Invoke(ctx, "Executor", "queryAll", []interface{}{sqlText, args}, func(ctx context.Context) (interface{}, error) {
		reader, err := read.New(ctx, r.DB, sqlText, newRecord)
		if err != nil {
			return nil, fmt.Errorf("%w: build reader for %q: %v", mapererrors.ErrDataStore, sqlText, err)
		}
		var results []interface{}
		err = reader.QueryAll(ctx, func(row interface{}) error {
			results = append(results, row)
			return nil
		}, args...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", mapererrors.ErrDataStore, err)
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]interface{}), nil
}
