package sqlexec

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"

	"github.com/viant/sqlmapper/pool"
	"github.com/viant/sqlmapper/tx"
)

func openExecTx(t *testing.T) (tx.Tx, func()) {
	db, err := sql.Open("sqlite", ":memory:")
	assert.NoError(t, err)
	db.SetMaxOpenConns(100)
	_, err = db.Exec("create table product(id integer primary key autoincrement, name text, price real)")
	assert.NoError(t, err)

	p := pool.New(pool.Config{MaxActive: 5, MaxIdle: 5}, "sqlite::memory:", "", "", db.Conn)
	m := tx.NewManaged(p, tx.IsolationDefault, true)
	return m, func() { _ = m.Close(); _ = db.Close() }
}

func TestExecutor_SimpleInsertAndQuery(t *testing.T) {
	transaction, cleanup := openExecTx(t)
	defer cleanup()

	e := NewExecutor(Simple, transaction, nil)
	res, err := e.Update(context.Background(), "insert into product(name, price) values (?, ?)", []interface{}{"widget", 9.99})
	assert.NoError(t, err)
	id, err := res.LastInsertId()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), id)

	rows, err := e.Query(context.Background(), "select name from product where id = ?", []interface{}{id})
	assert.NoError(t, err)
	assert.True(t, rows.Next())
	var name string
	assert.NoError(t, rows.Scan(&name))
	assert.Equal(t, "widget", name)
	assert.NoError(t, rows.Close())
}

func TestExecutor_ReuseCachesPreparedStatement(t *testing.T) {
	transaction, cleanup := openExecTx(t)
	defer cleanup()

	e := NewExecutor(Reuse, transaction, nil)
	_, err := e.Update(context.Background(), "insert into product(name, price) values (?, ?)", []interface{}{"a", 1.0})
	assert.NoError(t, err)
	_, err = e.Update(context.Background(), "insert into product(name, price) values (?, ?)", []interface{}{"b", 2.0})
	assert.NoError(t, err)
	assert.Len(t, e.stmtCache, 1)
	assert.NoError(t, e.Close())
}

func TestExecutor_BatchQueuesUntilFlush(t *testing.T) {
	transaction, cleanup := openExecTx(t)
	defer cleanup()

	e := NewExecutor(Batch, transaction, nil)
	_, err := e.Update(context.Background(), "insert into product(name, price) values (?, ?)", []interface{}{"a", 1.0})
	assert.NoError(t, err)
	_, err = e.Update(context.Background(), "insert into product(name, price) values (?, ?)", []interface{}{"b", 2.0})
	assert.NoError(t, err)

	rows, err := e.Query(context.Background(), "select count(*) from product", nil)
	assert.NoError(t, err)
	rows.Next()
	var count int
	assert.NoError(t, rows.Scan(&count))
	assert.Equal(t, 0, count, "batched updates must not run before Flush")
	assert.NoError(t, rows.Close())

	results, err := e.Flush(context.Background())
	assert.NoError(t, err)
	assert.Len(t, results, 2)

	rows, err = e.Query(context.Background(), "select count(*) from product", nil)
	assert.NoError(t, err)
	rows.Next()
	assert.NoError(t, rows.Scan(&count))
	assert.Equal(t, 2, count)
	assert.NoError(t, rows.Close())
}
