package sqlmapper

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/viant/sqlmapper/binding"
	"github.com/viant/sqlmapper/config"
	"github.com/viant/sqlmapper/dynamicsql"
	"github.com/viant/sqlmapper/errctx"
	"github.com/viant/sqlmapper/expr"
	"github.com/viant/sqlmapper/mapererrors"
	"github.com/viant/sqlmapper/sqlexec"
	"github.com/viant/sqlmapper/tx"
	"github.com/viant/sqlmapper/typehandler"
)

// RowBounds trims a query's mapped results to a window. A zero Limit means
// unbounded. Bounds participate in the cache key, so the same statement with
// different windows caches independently.
type RowBounds struct {
	Offset int
	Limit  int
}

// Session is one conversation with the database: a transaction, an executor
// with its statement handles, the first-level cache, and per-namespace
// transactional buffers over the shared second-level caches. Sessions are
// single-threaded; open one per goroutine.
type Session struct {
	factory     *Factory
	transaction tx.Tx
	executor    *sqlexec.Executor
	local      *sqlexec.LocalCache
	second     map[string]*sqlexec.SecondLevel
	rowMapper  *sqlexec.RowMapper
	autoCommit bool
	closed     bool
}

// StatementKind reports the registered kind of a statement id; part of the
// binding.Invoker contract.
func (s *Session) StatementKind(statementID string) (string, bool) {
	stmt, ok := s.factory.cfg.Statements[statementID]
	if !ok {
		return "", false
	}
	return stmt.Kind, true
}

// GetMapper fills mapperPtr's func fields with implementations dispatching
// through this session, using the namespace the mapper type was registered
// under.
func (s *Session) GetMapper(mapperPtr interface{}) error {
	namespace, ok := s.factory.mappers.NamespaceFor(reflect.TypeOf(mapperPtr))
	if !ok {
		return fmt.Errorf("%w: mapper type %T is not registered", mapererrors.ErrBinding, mapperPtr)
	}
	return binding.Bind(s, namespace, mapperPtr)
}

// Select runs a select statement and fills dest: a pointer to a slice
// receives every mapped row, any other pointer receives the single result
// (left zero when no row matched; more than one row is an error).
func (s *Session) Select(ctx context.Context, statementID string, param, dest interface{}) error {
	return s.SelectWithBounds(ctx, statementID, param, RowBounds{}, dest)
}

// SelectWithBounds is Select with an explicit result window.
func (s *Session) SelectWithBounds(ctx context.Context, statementID string, param interface{}, bounds RowBounds, dest interface{}) error {
	rv := reflect.ValueOf(dest)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("%w: select destination must be a non-nil pointer, got %T", mapererrors.ErrBinding, dest)
	}
	rowType := rv.Type().Elem()
	many := rowType.Kind() == reflect.Slice && rowType.Elem().Kind() != reflect.Uint8
	if many {
		rowType = rowType.Elem()
	}

	results, err := s.selectInternal(ctx, statementID, param, bounds, rowType)
	if err != nil {
		return err
	}
	return fillDest(rv, many, results, statementID)
}

// Insert runs an insert statement, honouring generated-key readback and
// <selectKey>, and returns the affected row count.
func (s *Session) Insert(ctx context.Context, statementID string, param interface{}) (int64, error) {
	return s.Execute(ctx, statementID, param)
}

// Update runs an update statement and returns the affected row count.
func (s *Session) Update(ctx context.Context, statementID string, param interface{}) (int64, error) {
	return s.Execute(ctx, statementID, param)
}

// Delete runs a delete statement and returns the affected row count.
func (s *Session) Delete(ctx context.Context, statementID string, param interface{}) (int64, error) {
	return s.Execute(ctx, statementID, param)
}

// Execute runs any non-select statement; part of the binding.Invoker
// contract and the shared implementation behind Insert/Update/Delete.
func (s *Session) Execute(ctx context.Context, statementID string, param interface{}) (int64, error) {
	compiled, err := s.factory.compiledFor(statementID)
	if err != nil {
		return 0, err
	}
	stmt := compiled.stmt
	if stmt.Kind == "select" {
		return 0, fmt.Errorf("%w: %s is a select statement", mapererrors.ErrBinding, statementID)
	}
	if err := s.checkUsable(stmt); err != nil {
		return 0, err
	}

	// Mutations drop the session cache and defer a namespace flush to
	// commit, unless flushCache="false" opts out.
	if stmt.FlushCache == nil || *stmt.FlushCache {
		s.local.Clear()
		if second := s.secondLevel(stmt.Namespace); second != nil {
			second.Clear()
		}
	}

	if stmt.SelectKeyID != "" && stmt.SelectKeyOrder == "BEFORE" {
		if err := s.runSelectKey(ctx, stmt.SelectKeyID, param); err != nil {
			return 0, err
		}
	}

	sqlText, args, breadcrumb, err := s.render(ctx, compiled, param)
	if err != nil {
		return 0, err
	}
	execCtx, cancel := s.statementContext(ctx, stmt)
	defer cancel()
	res, err := s.executor.Update(execCtx, sqlText, args)
	if err != nil {
		return 0, errctx.Wrap(breadcrumb, fmt.Errorf("%w: %v", mapererrors.ErrDataStore, err))
	}

	if stmt.Kind == "insert" && stmt.KeyProperty != "" &&
		(stmt.UseGeneratedKeys || s.factory.cfg.Settings.UseGeneratedKeys) {
		if err := sqlexec.ApplyGeneratedKey(res, stmt.KeyProperty, param, s.factory.reflections); err != nil {
			return 0, errctx.Wrap(breadcrumb, err)
		}
	}
	if stmt.SelectKeyID != "" && stmt.SelectKeyOrder == "AFTER" {
		if err := s.runSelectKey(ctx, stmt.SelectKeyID, param); err != nil {
			return 0, errctx.Wrap(breadcrumb, err)
		}
	}

	count, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report a count; the statement itself succeeded.
		return 0, nil
	}
	return count, nil
}

// Flush executes every pending batched update when the session runs a BATCH
// executor; a no-op otherwise.
func (s *Session) Flush(ctx context.Context) ([]sql.Result, error) {
	return s.executor.Flush(ctx)
}

// Commit flushes batched work, commits the transaction, publishes this
// session's buffered second-level writes, and drops the first-level cache.
func (s *Session) Commit(ctx context.Context) error {
	if _, err := s.executor.Flush(ctx); err != nil {
		return err
	}
	if err := s.transaction.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", mapererrors.ErrDataStore, err)
	}
	for _, second := range s.second {
		second.Commit()
	}
	s.local.Clear()
	return nil
}

// Rollback discards the transaction along with every buffered second-level
// write and the first-level cache.
func (s *Session) Rollback(ctx context.Context) error {
	for _, second := range s.second {
		second.Rollback()
	}
	s.local.Clear()
	if err := s.transaction.Rollback(); err != nil {
		return fmt.Errorf("%w: rollback: %v", mapererrors.ErrDataStore, err)
	}
	return nil
}

// Close releases the session: uncommitted second-level buffers are
// discarded, prepared statements are closed, and the connection returns to
// the pool (rolling back first when a transaction was left undecided).
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, second := range s.second {
		second.Rollback()
	}
	s.local.Clear()
	if err := s.executor.Close(); err != nil {
		_ = s.transaction.Close()
		return err
	}
	return s.transaction.Close()
}

func (s *Session) checkUsable(stmt *config.Statement) error {
	if s.closed {
		return fmt.Errorf("%w: session is closed", mapererrors.ErrDataStore)
	}
	if stmt.DatabaseID != "" && s.factory.databaseID != "" && stmt.DatabaseID != s.factory.databaseID {
		return fmt.Errorf("%w: statement %s applies to databaseId %q, connected database is %q",
			mapererrors.ErrConfig, stmt.ID, stmt.DatabaseID, s.factory.databaseID)
	}
	return nil
}

// autoReadable reports whether this session's plain automapped reads can go
// through the db-level sqlx reader: the session must have no transaction
// demarcation to respect (autoCommit), no per-session statement handles to
// reuse (Simple executor), and automapping must not be disabled.
func (s *Session) autoReadable() bool {
	return s.autoCommit && s.executor.Type == sqlexec.Simple &&
		s.factory.cfg.Settings.AutoMappingBehavior != "NONE"
}

// secondLevel returns this session's transactional buffer over the shared
// cache of namespace, creating it on first touch; nil when the namespace
// declares no cache.
func (s *Session) secondLevel(namespace string) *sqlexec.SecondLevel {
	if second, ok := s.second[namespace]; ok {
		return second
	}
	shared, ok := s.factory.caches[namespace]
	if !ok {
		return nil
	}
	second := sqlexec.NewSecondLevel(shared)
	s.second[namespace] = second
	return second
}

// render evaluates the statement's dynamic SQL against param and resolves
// the ordered driver argument list, returning the breadcrumb used to enrich
// any downstream failure.
func (s *Session) render(ctx context.Context, compiled *compiledStatement, param interface{}) (string, []interface{}, *errctx.Context, error) {
	stmt := compiled.stmt
	breadcrumb := (*errctx.Context)(nil).Store(errctx.Context{
		Resource: stmt.Namespace,
		Activity: "executing " + stmt.Kind,
		Object:   stmt.ID,
	})

	bindings := expr.Bindings{"_parameter": param, "_databaseId": s.factory.databaseID}
	dynCtx := dynamicsql.NewContext(bindings, s.factory.databaseID)
	sqlText, params, err := compiled.sql.Render(dynCtx, param)
	if err != nil {
		return "", nil, breadcrumb, errctx.Wrap(breadcrumb, err)
	}
	breadcrumb = breadcrumb.Store(errctx.Context{SQL: sqlText})
	if table := queryTable(sqlText); table != "" {
		breadcrumb = breadcrumb.Store(errctx.Context{Object: table})
	}

	values, err := dynamicsql.ResolveParamValues(params, dynCtx, param)
	if err != nil {
		return "", nil, breadcrumb, errctx.Wrap(breadcrumb, err)
	}
	args := make([]interface{}, len(params))
	for i, p := range params {
		bound, err := s.bindValue(i, p, values[i])
		if err != nil {
			return "", nil, breadcrumb, errctx.Wrap(breadcrumb, err)
		}
		args[i] = bound
	}
	return sqlText, args, breadcrumb, nil
}

// bindValue converts one resolved parameter value through the type-handler
// table. A declared javaType that resolves no handler is an error; an
// inferred one falls back to handing the raw value to the driver.
func (s *Session) bindValue(index int, p dynamicsql.Param, value interface{}) (interface{}, error) {
	declared := p.JavaType != ""
	var javaType reflect.Type
	if declared {
		t, ok := s.factory.cfg.Aliases.Resolve(p.JavaType)
		if !ok {
			return nil, fmt.Errorf("%w: parameter %s declares unknown javaType %q", mapererrors.ErrType, p.Property, p.JavaType)
		}
		javaType = t
	} else if value != nil {
		javaType = reflect.TypeOf(value)
	}
	if javaType == nil {
		return nil, nil
	}
	handler, err := s.factory.types.Resolve(javaType, typehandler.SQLType(p.JdbcType))
	if err != nil {
		if declared {
			return nil, err
		}
		return value, nil
	}
	return handler.SetParameter(index, value, typehandler.SQLType(p.JdbcType))
}

func (s *Session) statementContext(ctx context.Context, stmt *config.Statement) (context.Context, context.CancelFunc) {
	seconds := stmt.Timeout
	if seconds == 0 {
		seconds = s.factory.cfg.Settings.DefaultStatementTimeout
	}
	if seconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}

// selectInternal is the query pipeline: render, cache-key build, two-level
// cache consultation, execution, row mapping, bounds. rowType may be nil for
// nested selects, in which case the statement's declared type is required.
func (s *Session) selectInternal(ctx context.Context, statementID string, param interface{}, bounds RowBounds, rowType reflect.Type) ([]interface{}, error) {
	compiled, err := s.factory.compiledFor(statementID)
	if err != nil {
		return nil, err
	}
	stmt := compiled.stmt
	if err := s.checkUsable(stmt); err != nil {
		return nil, err
	}

	declaredType, resultMap, err := s.factory.declaredRowType(stmt)
	if err != nil {
		return nil, err
	}
	if rowType == nil {
		rowType = declaredType
	}
	if rowType == nil {
		return nil, fmt.Errorf("%w: statement %s declares no result type and none was supplied",
			mapererrors.ErrConfig, statementID)
	}

	sqlText, args, breadcrumb, err := s.render(ctx, compiled, param)
	if err != nil {
		return nil, err
	}

	key := sqlexec.BuildCacheKey(statementID, bounds.Offset, bounds.Limit, sqlText, args, s.factory.databaseID)
	keyID := key.ID()

	useCache := s.factory.cfg.Settings.CacheEnabled && (stmt.UseCache == nil || *stmt.UseCache)
	second := s.secondLevel(stmt.Namespace)
	if stmt.FlushCache != nil && *stmt.FlushCache {
		s.local.Clear()
		if second != nil {
			second.Clear()
		}
	}

	if useCache && second != nil {
		if cached, ok := second.Get(keyID); ok {
			if results, ok := cached.([]interface{}); ok {
				return results, nil
			}
		}
	}
	if cached, ok := s.local.Get(keyID); ok {
		return cached.([]interface{}), nil
	}

	execCtx, cancel := s.statementContext(ctx, stmt)
	defer cancel()

	var results []interface{}
	if resultMap == nil && !isScalarType(rowType) && s.autoReadable() {
		results, err = s.factory.reader.QueryAll(execCtx, sqlText, args, rowType)
		if err != nil {
			return nil, errctx.Wrap(breadcrumb, err)
		}
	} else {
		rows, err := s.executor.Query(execCtx, sqlText, args)
		if err != nil {
			return nil, errctx.Wrap(breadcrumb, fmt.Errorf("%w: %v", mapererrors.ErrDataStore, err))
		}
		defer rows.Close()
		if isScalarType(rowType) {
			results, err = s.scalarRows(rows, rowType)
		} else {
			results, err = s.rowMapper.MapRows(execCtx, rows, rowType, resultMap)
		}
		if err != nil {
			return nil, errctx.Wrap(breadcrumb, err)
		}
	}

	results = applyBounds(results, bounds)
	s.local.Put(keyID, results)
	if useCache && second != nil {
		second.Put(keyID, results)
	}
	return results, nil
}

// nestedSelect feeds <association>/<collection> select="..." mappings: the
// row's single feeding column value becomes the nested statement's root
// parameter.
func (s *Session) nestedSelect(ctx context.Context, statementID string, param interface{}) (interface{}, error) {
	results, err := s.selectInternal(ctx, statementID, param, RowBounds{}, nil)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// runSelectKey executes the synthetic <selectKey> statement and writes its
// single scalar result into the insert parameter's declared key property.
func (s *Session) runSelectKey(ctx context.Context, selectKeyID string, param interface{}) error {
	stmt, ok := s.factory.cfg.Statements[selectKeyID]
	if !ok {
		return fmt.Errorf("%w: no selectKey statement %q", mapererrors.ErrConfig, selectKeyID)
	}
	results, err := s.selectInternal(ctx, selectKeyID, param, RowBounds{}, nil)
	if err != nil {
		return err
	}
	if len(results) != 1 {
		return fmt.Errorf("%w: selectKey %s returned %d rows, want exactly one",
			mapererrors.ErrDataStore, selectKeyID, len(results))
	}
	return sqlexec.ApplySelectKeyValue(results[0], stmt.KeyProperty, param, s.factory.reflections)
}

// scalarRows maps single-column result sets onto a non-struct row type
// (counts, id lists, name lists) through the type-handler table.
func (s *Session) scalarRows(rows *sql.Rows, rowType reflect.Type) ([]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: read columns: %v", mapererrors.ErrDataStore, err)
	}
	var results []interface{}
	for rows.Next() {
		raw := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", mapererrors.ErrDataStore, err)
		}
		value := raw[0]
		if value != nil {
			if handler, err := s.factory.types.Resolve(rowType, ""); err == nil {
				converted, err := handler.GetResult(value)
				if err != nil {
					return nil, fmt.Errorf("%w: convert scalar result: %v", mapererrors.ErrType, err)
				}
				value = converted
			}
		}
		results = append(results, value)
	}
	return results, rows.Err()
}

func isScalarType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return t == reflect.TypeOf(time.Time{})
	case reflect.Map, reflect.Interface:
		return false
	default:
		return true
	}
}

func applyBounds(results []interface{}, bounds RowBounds) []interface{} {
	if bounds.Offset <= 0 && bounds.Limit <= 0 {
		return results
	}
	start := bounds.Offset
	if start > len(results) {
		start = len(results)
	}
	end := len(results)
	if bounds.Limit > 0 && start+bounds.Limit < end {
		end = start + bounds.Limit
	}
	return results[start:end]
}

// fillDest writes mapped results into the caller's destination pointer.
func fillDest(dest reflect.Value, many bool, results []interface{}, statementID string) error {
	elem := dest.Elem()
	if many {
		out := reflect.MakeSlice(elem.Type(), 0, len(results))
		for _, r := range results {
			v, err := adaptResult(r, elem.Type().Elem())
			if err != nil {
				return err
			}
			out = reflect.Append(out, v)
		}
		elem.Set(out)
		return nil
	}
	switch len(results) {
	case 0:
		return nil
	case 1:
		v, err := adaptResult(results[0], elem.Type())
		if err != nil {
			return err
		}
		elem.Set(v)
		return nil
	default:
		return fmt.Errorf("%w: statement %s returned %d rows where one was expected",
			mapererrors.ErrBinding, statementID, len(results))
	}
}

// adaptResult reconciles a mapped row (typically *T for struct rows, a bare
// value for scalars) with the type the caller asked for.
func adaptResult(result interface{}, want reflect.Type) (reflect.Value, error) {
	if result == nil {
		return reflect.Zero(want), nil
	}
	rv := reflect.ValueOf(result)
	for rv.Kind() == reflect.Interface && !rv.IsNil() {
		rv = rv.Elem()
	}
	for rv.Kind() == reflect.Ptr && want.Kind() != reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Ptr && want.Kind() == reflect.Ptr && rv.Type() == want.Elem() {
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		rv = ptr
	}
	if rv.Type() == want {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(want) {
		return rv.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot adapt %s result to %s", mapererrors.ErrBinding, rv.Type(), want)
}
