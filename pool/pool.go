// Package pool implements a synchronous, thread-safe connection pool:
// idle/active lists under a single monitor, checkout with overdue reclaim,
// and a proxy connection whose Close returns the connection to the pool
// instead of closing it.
//
// database/sql keeps its own internal pool, but it has no equivalent to the
// overdue-reclaim, bad-connection-tolerance, and ping-on-checkout liveness
// behaviour needed here, so this package manages *sql.Conn leases
// explicitly beneath it.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/viant/sqlmapper/mapererrors"
)

// Config carries the connection pool's tunable knobs.
type Config struct {
	MaxActive       int
	MaxIdle         int
	MaxCheckoutTime time.Duration
	WaitTime        time.Duration
	MaxBadTolerance int
	PingQuery       string
	PingEnabled     bool
	PingIfIdleFor   time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxActive <= 0 {
		out.MaxActive = 10
	}
	if out.MaxIdle <= 0 {
		out.MaxIdle = 5
	}
	if out.MaxCheckoutTime <= 0 {
		out.MaxCheckoutTime = 20 * time.Second
	}
	if out.WaitTime <= 0 {
		out.WaitTime = 20 * time.Second
	}
	if out.MaxBadTolerance <= 0 {
		out.MaxBadTolerance = 3
	}
	return out
}

// PooledConnection wraps a raw *sql.Conn with pool bookkeeping.
type PooledConnection struct {
	real         *sql.Conn
	pool         *Pool
	typeCode     uint64
	createdAt    time.Time
	lastUsedAt   time.Time
	checkedOutAt time.Time
	valid        bool
}

// CheckoutTime reports how long this connection has been checked out.
func (c *PooledConnection) CheckoutTime() time.Duration {
	return time.Since(c.checkedOutAt)
}

// invalidate marks the wrapper unusable; the underlying real connection may
// or may not still be open, depending on caller intent.
func (c *PooledConnection) invalidate() { c.valid = false }

// Pool is the monitor-guarded idle/active connection pool.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	cfg    Config
	open   func(ctx context.Context) (*sql.Conn, error)
	typeCode uint64

	idle   []*PooledConnection
	active []*PooledConnection

	requestCount            int64
	accumulatedWaitTime     time.Duration
	badConnectionCount      int64
	claimedOverdueConnCount int64
}

// New builds a Pool. open is the factory used to create a fresh real
// connection on a pool miss (typically db.Conn(ctx) against a *sql.DB
// configured by an environment/dataSource element).
// url/user/password seed the expected type code.
func New(cfg Config, url, user, password string, open func(ctx context.Context) (*sql.Conn, error)) *Pool {
	p := &Pool{cfg: cfg.withDefaults(), open: open, typeCode: typeCodeOf(url, user, password)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func typeCodeOf(url, user, password string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(url + "|" + user + "|" + password))
	return h.Sum64()
}

// Conn is the caller-facing proxy. Close returns the connection to the pool
// rather than closing the underlying real connection.
type Conn struct {
	pool   *Pool
	pooled *PooledConnection
	closed bool
}

// Raw exposes the underlying *sql.Conn for executing statements.
func (c *Conn) Raw() *sql.Conn { return c.pooled.real }

// Close returns the connection to the pool. Safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.pool.pushConnection(c.pooled)
}

// Get implements the pool's checkout algorithm.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requestCount++
	start := time.Now()
	var badLocal int

	for {
		if len(p.idle) > 0 {
			pc := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			if err := p.checkoutValidate(ctx, pc, &badLocal); err != nil {
				if badLocal > p.cfg.MaxIdle+p.cfg.MaxBadTolerance {
					return nil, err
				}
				continue
			}
			p.activate(pc)
			p.accumulatedWaitTime += time.Since(start)
			return &Conn{pool: p, pooled: pc}, nil
		}

		if len(p.active) < p.cfg.MaxActive {
			real, err := p.open(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: open connection: %v", mapererrors.ErrPool, err)
			}
			pc := &PooledConnection{real: real, pool: p, valid: true, createdAt: time.Now()}
			p.activate(pc)
			p.accumulatedWaitTime += time.Since(start)
			return &Conn{pool: p, pooled: pc}, nil
		}

		reclaimed := p.tryReclaimOverdue(ctx)
		if reclaimed != nil {
			p.accumulatedWaitTime += time.Since(start)
			return &Conn{pool: p, pooled: reclaimed}, nil
		}

		if !p.waitOrTimeout(ctx) {
			return nil, fmt.Errorf("%w: no connection available after waiting %s", mapererrors.ErrPool, p.cfg.WaitTime)
		}
	}
}

// tryReclaimOverdue scans active connections for one past MaxCheckoutTime
// and reclaims it, handing its real connection to a fresh wrapper so the
// caller that overran its checkout window loses ownership silently.
func (p *Pool) tryReclaimOverdue(ctx context.Context) *PooledConnection {
	for i, pc := range p.active {
		if pc.CheckoutTime() <= p.cfg.MaxCheckoutTime {
			continue
		}
		p.active = append(p.active[:i:i], p.active[i+1:]...)
		replacement := &PooledConnection{real: pc.real, pool: p, valid: true, createdAt: pc.createdAt}
		pc.invalidate()
		p.claimedOverdueConnCount++
		p.activate(replacement)
		return replacement
	}
	return nil
}

// waitOrTimeout blocks up to WaitTime for a state change; returns false on
// timeout or context cancellation.
func (p *Pool) waitOrTimeout(ctx context.Context) bool {
	done := make(chan struct{})
	timer := time.AfterFunc(p.cfg.WaitTime, func() { close(done) })
	defer timer.Stop()

	waitCh := make(chan struct{})
	go func() {
		p.mu.Lock()
		if len(p.idle) == 0 && len(p.active) >= p.cfg.MaxActive {
			p.cond.Wait()
		}
		p.mu.Unlock()
		close(waitCh)
	}()

	// p.mu is released here so the helper goroutine above and any concurrent
	// pushConnection can take it; the helper waits on the condition only while
	// no connection can be handed out. p.mu is re-acquired before returning to
	// preserve the caller's lock discipline.
	p.mu.Unlock()
	select {
	case <-waitCh:
		p.mu.Lock()
		return true
	case <-done:
		p.mu.Lock()
		p.cond.Signal()
		return false
	case <-ctx.Done():
		p.mu.Lock()
		p.cond.Signal()
		return false
	}
}

func (p *Pool) activate(pc *PooledConnection) {
	pc.typeCode = p.typeCode
	pc.checkedOutAt = time.Now()
	pc.lastUsedAt = pc.checkedOutAt
	p.active = append(p.active, pc)
}

// checkoutValidate validates liveness; on failure it counts a bad connection
// and returns an error so the caller's loop retries.
func (p *Pool) checkoutValidate(ctx context.Context, pc *PooledConnection, badLocal *int) error {
	if p.isLive(ctx, pc) {
		return nil
	}
	p.badConnectionCount++
	*badLocal++
	_ = pc.real.Close()
	pc.invalidate()
	if *badLocal > p.cfg.MaxIdle+p.cfg.MaxBadTolerance {
		return fmt.Errorf("%w: exhausted bad-connection tolerance", mapererrors.ErrDataStore)
	}
	return fmt.Errorf("%w: bad connection", mapererrors.ErrDataStore)
}

func (p *Pool) isLive(ctx context.Context, pc *PooledConnection) bool {
	if !p.cfg.PingEnabled {
		return true
	}
	if time.Since(pc.lastUsedAt) < p.cfg.PingIfIdleFor {
		return true
	}
	if p.cfg.PingQuery == "" {
		return pc.real.PingContext(ctx) == nil
	}
	_, err := pc.real.ExecContext(ctx, p.cfg.PingQuery)
	return err == nil
}

// pushConnection implements the pool's return algorithm.
func (p *Pool) pushConnection(pc *PooledConnection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, a := range p.active {
		if a == pc {
			idx = i
			break
		}
	}
	if idx == -1 {
		// Already reclaimed as overdue; nothing to do.
		return nil
	}
	p.active = append(p.active[:idx:idx], p.active[idx+1:]...)

	if pc.valid && len(p.idle) < p.cfg.MaxIdle && pc.typeCode == p.typeCode {
		fresh := &PooledConnection{real: pc.real, pool: p, valid: true, typeCode: pc.typeCode, createdAt: pc.createdAt, lastUsedAt: time.Now()}
		pc.invalidate()
		p.idle = append(p.idle, fresh)
		p.cond.Broadcast()
		return nil
	}

	pc.invalidate()
	p.cond.Broadcast()
	return pc.real.Close()
}

// Stats snapshots pool counters for diagnostics/tests.
type Stats struct {
	Active, Idle                    int
	RequestCount                    int64
	AccumulatedWaitTime              time.Duration
	BadConnectionCount               int64
	ClaimedOverdueConnectionCount    int64
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Active:                        len(p.active),
		Idle:                          len(p.idle),
		RequestCount:                  p.requestCount,
		AccumulatedWaitTime:           p.accumulatedWaitTime,
		BadConnectionCount:            p.badConnectionCount,
		ClaimedOverdueConnectionCount: p.claimedOverdueConnCount,
	}
}
