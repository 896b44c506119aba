package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/viant/sqlmapper/mapererrors"
	"github.com/viant/sqlmapper/tx"
)

// ExecutorType selects one of the three statement-execution strategies.
type ExecutorType string

const (
	// Simple prepares and closes a statement handle per call.
	Simple ExecutorType = "SIMPLE"
	// Reuse keeps prepared statement handles alive for the lifetime of the
	// executor, keyed by SQL text, reusing them across calls.
	Reuse ExecutorType = "REUSE"
	// Batch defers update statements into per-SQL-text batches, running them
	// against the underlying driver only when Flush is called.
	Batch ExecutorType = "BATCH"
)

type batchEntry struct {
	args []interface{}
}

// Executor runs statements against a tx.Tx according to its ExecutorType,
// exposing the interceptor chain and reused/batched statement handles a
// session shares across every mapped call it makes on one connection.
type Executor struct {
	Type  ExecutorType
	Tx    tx.Tx
	Chain *Chain

	mu        sync.Mutex
	stmtCache map[string]*sql.Stmt
	batches   map[string][]batchEntry
}

// NewExecutor builds an Executor of the given style bound to tx.
func NewExecutor(execType ExecutorType, transaction tx.Tx, chain *Chain) *Executor {
	if chain == nil {
		chain = NewChain()
	}
	return &Executor{
		Type:      execType,
		Tx:        transaction,
		Chain:     chain,
		stmtCache: map[string]*sql.Stmt{},
		batches:   map[string][]batchEntry{},
	}
}

// Query runs sqlText against the executor's transaction, invoking the
// interceptor chain registered under ("Executor", "query").
func (e *Executor) Query(ctx context.Context, sqlText string, args []interface{}) (*sql.Rows, error) {
	result, err := e.Chain.Invoke(ctx, "Executor", "query", []interface{}{sqlText, args}, func(ctx context.Context) (interface{}, error) {
		return e.query(ctx, sqlText, args)
	})
	if err != nil {
		return nil, err
	}
	return result.(*sql.Rows), nil
}

func (e *Executor) query(ctx context.Context, sqlText string, args []interface{}) (*sql.Rows, error) {
	if e.Type == Reuse {
		stmt, err := e.reusedStmt(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		return stmt.QueryContext(ctx, args...)
	}
	return e.Tx.QueryContext(ctx, sqlText, args...)
}

// Update runs an insert/update/delete statement. Under Batch it queues the
// call instead of running it immediately and returns a zero sql.Result;
// Flush must be called to actually execute queued batches, and it returns
// one sql.Result per queued call.
func (e *Executor) Update(ctx context.Context, sqlText string, args []interface{}) (sql.Result, error) {
	result, err := e.Chain.Invoke(ctx, "Executor", "update", []interface{}{sqlText, args}, func(ctx context.Context) (interface{}, error) {
		return e.update(ctx, sqlText, args)
	})
	if err != nil {
		return nil, err
	}
	return result.(sql.Result), nil
}

func (e *Executor) update(ctx context.Context, sqlText string, args []interface{}) (sql.Result, error) {
	switch e.Type {
	case Batch:
		e.mu.Lock()
		e.batches[sqlText] = append(e.batches[sqlText], batchEntry{args: args})
		e.mu.Unlock()
		return driverResult{}, nil
	case Reuse:
		stmt, err := e.reusedStmt(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		return stmt.ExecContext(ctx, args...)
	default:
		return e.Tx.ExecContext(ctx, sqlText, args...)
	}
}

// Flush executes every batched statement queued under Batch style and
// clears the queue. Calls sharing one SQL text run in the order they were
// queued; the order between different SQL texts is not defined. It is a
// no-op for Simple/Reuse executors.
func (e *Executor) Flush(ctx context.Context) ([]sql.Result, error) {
	if e.Type != Batch {
		return nil, nil
	}
	e.mu.Lock()
	batches := e.batches
	e.batches = map[string][]batchEntry{}
	e.mu.Unlock()

	var results []sql.Result
	for sqlText, entries := range batches {
		stmt, err := e.Tx.PrepareContext(ctx, sqlText)
		if err != nil {
			return results, fmt.Errorf("%w: prepare batch %q: %v", mapererrors.ErrDataStore, sqlText, err)
		}
		for _, entry := range entries {
			res, err := stmt.ExecContext(ctx, entry.args...)
			if err != nil {
				_ = stmt.Close()
				return results, fmt.Errorf("%w: batch exec %q: %v", mapererrors.ErrDataStore, sqlText, err)
			}
			results = append(results, res)
		}
		_ = stmt.Close()
	}
	return results, nil
}

func (e *Executor) reusedStmt(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stmt, ok := e.stmtCache[sqlText]; ok {
		return stmt, nil
	}
	stmt, err := e.Tx.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare %q: %v", mapererrors.ErrDataStore, sqlText, err)
	}
	e.stmtCache[sqlText] = stmt
	return stmt, nil
}

// Close releases every prepared statement handle held by a Reuse executor.
// Simple and Batch executors hold nothing to release.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for sqlText, stmt := range e.stmtCache {
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close prepared statement %q: %w", sqlText, err)
		}
	}
	e.stmtCache = map[string]*sql.Stmt{}
	return firstErr
}

// driverResult is the zero sql.Result handed back for a queued (not yet
// executed) batch update.
type driverResult struct{}

func (driverResult) LastInsertId() (int64, error) { return 0, nil }
func (driverResult) RowsAffected() (int64, error) { return 0, nil }
