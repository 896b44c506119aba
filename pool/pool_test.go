package pool

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
)

func openTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	assert.NoError(t, err)
	db.SetMaxOpenConns(100)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPool_CheckoutAndReturn(t *testing.T) {
	db := openTestDB(t)
	p := New(Config{MaxActive: 2, MaxIdle: 2}, "sqlite::memory:", "", "", db.Conn)
	ctx := context.Background()

	c1, err := p.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Active)

	assert.NoError(t, c1.Close())
	assert.Equal(t, 0, p.Stats().Active)
	assert.Equal(t, 1, p.Stats().Idle)

	c2, err := p.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, p.Stats().Idle)
	assert.NoError(t, c2.Close())
}

func TestPool_ReclaimsOverdueConnection(t *testing.T) {
	db := openTestDB(t)
	p := New(Config{MaxActive: 1, MaxIdle: 1, MaxCheckoutTime: 10 * time.Millisecond, WaitTime: 200 * time.Millisecond}, "sqlite::memory:", "", "", db.Conn)
	ctx := context.Background()

	first, err := p.Get(ctx)
	assert.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	second, err := p.Get(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, second)
	assert.Equal(t, int64(1), p.Stats().ClaimedOverdueConnectionCount)

	// first's eventual Close is a no-op: its slot was already reclaimed.
	assert.NoError(t, first.Close())
	assert.NoError(t, second.Close())
}

func TestPool_WaitTimesOutWhenExhausted(t *testing.T) {
	db := openTestDB(t)
	p := New(Config{MaxActive: 1, MaxIdle: 1, MaxCheckoutTime: time.Hour, WaitTime: 20 * time.Millisecond}, "sqlite::memory:", "", "", db.Conn)
	ctx := context.Background()

	held, err := p.Get(ctx)
	assert.NoError(t, err)
	defer held.Close()

	_, err = p.Get(ctx)
	assert.Error(t, err)
}

func TestPool_KeepsConnectionOfMatchingType(t *testing.T) {
	db := openTestDB(t)
	p := New(Config{MaxActive: 2, MaxIdle: 2}, "sqlite::memory:", "a", "pw", db.Conn)
	ctx := context.Background()

	c, err := p.Get(ctx)
	assert.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.Equal(t, 1, p.Stats().Idle)
}
