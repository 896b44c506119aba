package tx

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"

	"github.com/viant/sqlmapper/pool"
)

func openPool(t *testing.T) *pool.Pool {
	db, err := sql.Open("sqlite", ":memory:")
	assert.NoError(t, err)
	db.SetMaxOpenConns(100)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec("create table t(id integer primary key, name text)")
	assert.NoError(t, err)
	return pool.New(pool.Config{MaxActive: 5, MaxIdle: 5}, "sqlite::memory:", "", "", db.Conn)
}

func TestManaged_CommitPersists(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()

	m := NewManaged(p, IsolationDefault, false)
	_, err := m.ExecContext(ctx, "insert into t(id, name) values (1, 'a')")
	assert.NoError(t, err)
	assert.NoError(t, m.Commit())
	assert.NoError(t, m.Close())

	m2 := NewManaged(p, IsolationDefault, false)
	rows, err := m2.QueryContext(ctx, "select name from t where id = 1")
	assert.NoError(t, err)
	assert.True(t, rows.Next())
	var name string
	assert.NoError(t, rows.Scan(&name))
	assert.Equal(t, "a", name)
	assert.NoError(t, rows.Close())
	assert.NoError(t, m2.Close())
}

func TestManaged_CloseWithoutDecisionRollsBack(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()

	m := NewManaged(p, IsolationDefault, false)
	_, err := m.ExecContext(ctx, "insert into t(id, name) values (2, 'b')")
	assert.NoError(t, err)
	assert.NoError(t, m.Close())

	m2 := NewManaged(p, IsolationDefault, false)
	rows, err := m2.QueryContext(ctx, "select count(*) from t where id = 2")
	assert.NoError(t, err)
	assert.True(t, rows.Next())
	var count int
	assert.NoError(t, rows.Scan(&count))
	assert.Equal(t, 0, count)
	assert.NoError(t, rows.Close())
	assert.NoError(t, m2.Close())
}

func TestManaged_AutoCommitSkipsDemarcation(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()

	m := NewManaged(p, IsolationDefault, true)
	_, err := m.ExecContext(ctx, "insert into t(id, name) values (3, 'c')")
	assert.NoError(t, err)
	assert.NoError(t, m.Close()) // no tx begun, so no implicit rollback

	m2 := NewManaged(p, IsolationDefault, true)
	rows, err := m2.QueryContext(ctx, "select count(*) from t where id = 3")
	assert.NoError(t, err)
	assert.True(t, rows.Next())
	var count int
	assert.NoError(t, rows.Scan(&count))
	assert.Equal(t, 1, count)
	assert.NoError(t, rows.Close())
	assert.NoError(t, m2.Close())
}

func TestExternal_CloseIsNoOp(t *testing.T) {
	e := NewExternalConn(nil)
	assert.NoError(t, e.Close())
	assert.NoError(t, e.Commit())
	assert.NoError(t, e.Rollback())
}
