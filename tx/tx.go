// Package tx implements the transaction abstraction: a connection-managed
// transaction that lazily acquires its connection from the pool on first
// use, and an externally-managed variant that wraps a caller-supplied
// connection without owning its lifecycle.
package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/viant/sqlmapper/mapererrors"
	"github.com/viant/sqlmapper/pool"
)

// IsolationLevel mirrors the JDBC-style levels a configuration document's
// transactionManager/environment element can request.
type IsolationLevel int

const (
	IsolationDefault IsolationLevel = iota
	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

func (l IsolationLevel) sqlLevel() sql.IsolationLevel {
	switch l {
	case IsolationReadUncommitted:
		return sql.LevelReadUncommitted
	case IsolationReadCommitted:
		return sql.LevelReadCommitted
	case IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// Tx is the common surface both transaction-ownership modes expose.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	Commit() error
	Rollback() error
	Close() error
}

// Managed is a connection-managed transaction: it checks a connection out of
// the pool on first statement and returns it to the pool on Close, whatever
// the outcome. autoCommit, when true, skips transaction demarcation
// entirely and lets each statement commit on its own, matching an
// <environment> element's autoCommit setting.
type Managed struct {
	pool       *pool.Pool
	isolation  IsolationLevel
	autoCommit bool

	mu      sync.Mutex
	conn    *pool.Conn
	sqlTx   *sql.Tx
	begun   bool
	closed  bool
	decided bool
}

// NewManaged returns a Managed transaction bound to p. No connection is
// acquired until the first statement runs.
func NewManaged(p *pool.Pool, isolation IsolationLevel, autoCommit bool) *Managed {
	return &Managed{pool: p, isolation: isolation, autoCommit: autoCommit}
}

func (m *Managed) ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.begun {
		return nil
	}
	conn, err := m.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %v", mapererrors.ErrPool, err)
	}
	m.conn = conn
	if !m.autoCommit {
		sqlTx, err := conn.Raw().BeginTx(ctx, &sql.TxOptions{Isolation: m.isolation.sqlLevel()})
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: begin transaction: %v", mapererrors.ErrDataStore, err)
		}
		m.sqlTx = sqlTx
	}
	m.begun = true
	return nil
}

func (m *Managed) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := m.ensure(ctx); err != nil {
		return nil, err
	}
	if m.sqlTx != nil {
		return m.sqlTx.ExecContext(ctx, query, args...)
	}
	return m.conn.Raw().ExecContext(ctx, query, args...)
}

func (m *Managed) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := m.ensure(ctx); err != nil {
		return nil, err
	}
	if m.sqlTx != nil {
		return m.sqlTx.QueryContext(ctx, query, args...)
	}
	return m.conn.Raw().QueryContext(ctx, query, args...)
}

func (m *Managed) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if err := m.ensure(ctx); err != nil {
		return nil, err
	}
	if m.sqlTx != nil {
		return m.sqlTx.PrepareContext(ctx, query)
	}
	return m.conn.Raw().PrepareContext(ctx, query)
}

func (m *Managed) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decided = true
	if m.sqlTx == nil {
		return nil
	}
	return m.sqlTx.Commit()
}

func (m *Managed) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decided = true
	if m.sqlTx == nil {
		return nil
	}
	return m.sqlTx.Rollback()
}

// Close returns the underlying connection to the pool. If a transaction was
// begun but neither Commit nor Rollback was called, it rolls back, matching
// the close-implies-rollback rule.
func (m *Managed) Close() error {
	m.mu.Lock()
	sqlTx, conn, begun, decided := m.sqlTx, m.conn, m.begun, m.decided
	m.closed = true
	m.mu.Unlock()

	if !begun {
		return nil
	}
	if sqlTx != nil && !decided {
		_ = sqlTx.Rollback()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// External is an externally-managed transaction: the caller supplied the
// connection (and possibly an already-open *sql.Tx), so Close never returns
// it to a pool; ownership stays with the caller.
type External struct {
	raw   *sql.Tx
	conn  *sql.Conn
}

// NewExternal wraps a caller-owned *sql.Tx.
func NewExternal(raw *sql.Tx) *External { return &External{raw: raw} }

// NewExternalConn wraps a caller-owned *sql.Conn with autoCommit semantics
// (no transaction demarcation performed by this package).
func NewExternalConn(conn *sql.Conn) *External { return &External{conn: conn} }

func (e *External) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if e.raw != nil {
		return e.raw.ExecContext(ctx, query, args...)
	}
	return e.conn.ExecContext(ctx, query, args...)
}

func (e *External) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if e.raw != nil {
		return e.raw.QueryContext(ctx, query, args...)
	}
	return e.conn.QueryContext(ctx, query, args...)
}

func (e *External) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if e.raw != nil {
		return e.raw.PrepareContext(ctx, query)
	}
	return e.conn.PrepareContext(ctx, query)
}

func (e *External) Commit() error {
	if e.raw != nil {
		return e.raw.Commit()
	}
	return nil
}

func (e *External) Rollback() error {
	if e.raw != nil {
		return e.raw.Rollback()
	}
	return nil
}

// Close is a no-op: an externally-managed transaction's connection lifecycle
// belongs to whoever handed it in.
func (e *External) Close() error { return nil }
