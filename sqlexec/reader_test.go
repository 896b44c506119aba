package sqlexec

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
)

type readerRow struct {
	ID        int64
	Name      string
	UnitPrice float64
}

func TestAutoReader_QueryAll(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	assert.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("create table item(id integer primary key, name text, unit_price real)")
	assert.NoError(t, err)
	_, err = db.Exec("insert into item(id, name, unit_price) values (1, 'anvil', 10), (2, 'rope', 20)")
	assert.NoError(t, err)

	r := &AutoReader{DB: db, Chain: NewChain()}
	rows, err := r.QueryAll(ctx, "select id, name, unit_price from item where unit_price >= ? order by id",
		[]interface{}{5.0}, reflect.TypeOf(readerRow{}))
	assert.NoError(t, err)
	assert.Len(t, rows, 2)

	first, ok := rows[0].(*readerRow)
	assert.True(t, ok)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "anvil", first.Name)
	assert.Equal(t, 10.0, first.UnitPrice)
}

func TestAutoReader_InterceptorWrapsQueryAll(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	assert.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("create table item(id integer primary key, name text)")
	assert.NoError(t, err)
	_, err = db.Exec("insert into item(id, name) values (1, 'anvil')")
	assert.NoError(t, err)

	var observed []string
	chain := NewChain()
	chain.Register("Executor", "queryAll", nil, InterceptorFunc(func(ctx context.Context, inv *Invocation) (interface{}, error) {
		observed = append(observed, inv.Args[0].(string))
		return inv.Proceed(ctx)
	}))

	type row struct {
		ID   int64
		Name string
	}
	r := &AutoReader{DB: db, Chain: chain}
	rows, err := r.QueryAll(ctx, "select id, name from item", nil, reflect.TypeOf(row{}))
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Len(t, observed, 1)
	assert.Contains(t, observed[0], "from item")
}
