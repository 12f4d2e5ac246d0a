// Package pool implements the bounded connection pool behind a sqlrelay
// client and the process-wide registry that lets clients with identical
// configuration share one pool.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/lexiumindustries/sqlrelay/driver"
)

var (
	// ErrTimeout is returned when no connection became available within
	// the configured acquire timeout.
	ErrTimeout = errors.New("pool: timed out waiting for a connection")

	// ErrClosed is returned for any acquisition attempted after Shutdown.
	ErrClosed = errors.New("pool: pool is closed")
)

// Config controls the size and recycling policy of a Pool.
// The zero value takes the documented defaults.
type Config struct {
	// MaxOpen caps concurrently checked-out connections. Default 10.
	MaxOpen int
	// MinIdle pre-dials this many connections when the pool is created.
	MinIdle int
	// MaxLifetime retires a connection this long after it was opened.
	// Zero means unlimited.
	MaxLifetime time.Duration
	// MaxIdleTime retires a connection idle for this long. Zero means
	// unlimited.
	MaxIdleTime time.Duration
	// AcquireTimeout bounds how long Acquire waits for capacity.
	// Default 30s.
	AcquireTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpen <= 0 {
		c.MaxOpen = 10
	}
	if c.MinIdle > c.MaxOpen {
		c.MinIdle = c.MaxOpen
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	return c
}

// Dialer opens one new wire connection.
type Dialer func(ctx context.Context) (driver.Conn, error)

// Conn is a pooled connection, exclusively owned by its holder between
// Acquire and Release.
type Conn struct {
	driver.Conn

	id        string
	createdAt time.Time
	idleSince time.Time
}

// ID identifies the connection in log records.
func (c *Conn) ID() string { return c.id }

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	Open    int // connections currently open (checked out + idle)
	Idle    int // connections sitting in the free list
	Waiting int // acquirers blocked on capacity
}

// Pool owns a bounded set of live connections. Capacity is gated by a
// weighted semaphore whose waiters are served in FIFO order; the free list
// is guarded by a mutex and handed out most-recently-used first.
type Pool struct {
	cfg  Config
	dial Dialer
	sem  *semaphore.Weighted
	log  *slog.Logger
	done chan struct{}

	mu      sync.Mutex
	idle    []*Conn
	open    int
	waiting int
	closed  bool
}

// New creates a pool. When cfg.MinIdle > 0 the warm-up dials happen in the
// background; Acquire never depends on them.
func New(cfg Config, dial Dialer, log *slog.Logger) *Pool {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		cfg:  cfg,
		dial: dial,
		sem:  semaphore.NewWeighted(int64(cfg.MaxOpen)),
		log:  log,
		done: make(chan struct{}),
	}
	if cfg.MinIdle > 0 {
		go p.warm(cfg.MinIdle)
	}
	return p
}

// Acquire blocks until a connection is available or the acquire timeout
// elapses. The ctx may cancel the wait early.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	go func() {
		// Shutdown must drain waiters, not leave them to time out.
		select {
		case <-p.done:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	p.addWaiting(1)
	err := p.sem.Acquire(waitCtx, 1)
	p.addWaiting(-1)
	if err != nil {
		switch {
		case p.isClosed():
			return nil, ErrClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, ErrTimeout
		}
	}

	// Prefer a fresh-enough idle connection; discard stale ones.
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.sem.Release(1)
			return nil, ErrClosed
		}
		var pc *Conn
		if n := len(p.idle); n > 0 {
			pc = p.idle[n-1]
			p.idle = p.idle[:n-1]
		}
		p.mu.Unlock()
		if pc == nil {
			break
		}
		if p.expired(pc) {
			p.discard(pc, "stale")
			continue
		}
		pc.idleSince = time.Time{}
		return pc, nil
	}

	conn, err := p.dial(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	pc := &Conn{Conn: conn, id: uuid.NewString(), createdAt: time.Now()}
	p.mu.Lock()
	p.open++
	p.mu.Unlock()
	p.log.Debug("opened connection", "conn_id", pc.id)
	return pc, nil
}

// Release returns a connection to the pool. Broken, expired or post-shutdown
// connections are closed and replaced by a fresh dial on a later Acquire.
// Each acquired connection must be released exactly once.
func (p *Pool) Release(pc *Conn, broken bool) {
	if pc == nil {
		return
	}
	p.mu.Lock()
	keep := !p.closed && !broken && !p.expired(pc) && len(p.idle) < p.cfg.MaxOpen
	if keep {
		pc.idleSince = time.Now()
		p.idle = append(p.idle, pc)
	}
	p.mu.Unlock()
	if !keep {
		p.discard(pc, "released broken or closed")
	}
	p.sem.Release(1)
}

// Shutdown closes all idle connections and fails every later acquisition
// with ErrClosed. Connections still checked out are closed on release.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.done)
	for _, pc := range idle {
		p.discard(pc, "shutdown")
	}
	p.log.Debug("pool shut down", "closed_idle", len(idle))
}

// Stats reports current pool usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Open: p.open, Idle: len(p.idle), Waiting: p.waiting}
}

func (p *Pool) warm(n int) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
	defer cancel()
	for i := 0; i < n; i++ {
		conn, err := p.dial(ctx)
		if err != nil {
			p.log.Warn("pool warm-up dial failed", "error", err)
			return
		}
		pc := &Conn{Conn: conn, id: uuid.NewString(), createdAt: time.Now(), idleSince: time.Now()}
		p.mu.Lock()
		if p.closed || len(p.idle) >= p.cfg.MaxOpen {
			p.mu.Unlock()
			_ = conn.Close()
			return
		}
		p.idle = append(p.idle, pc)
		p.open++
		p.mu.Unlock()
	}
}

func (p *Pool) expired(pc *Conn) bool {
	now := time.Now()
	if p.cfg.MaxLifetime > 0 && now.Sub(pc.createdAt) >= p.cfg.MaxLifetime {
		return true
	}
	if p.cfg.MaxIdleTime > 0 && !pc.idleSince.IsZero() && now.Sub(pc.idleSince) >= p.cfg.MaxIdleTime {
		return true
	}
	return false
}

func (p *Pool) discard(pc *Conn, reason string) {
	if err := pc.Conn.Close(); err != nil {
		p.log.Warn("closing connection failed", "conn_id", pc.id, "error", err)
	}
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
	p.log.Debug("discarded connection", "conn_id", pc.id, "reason", reason)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) addWaiting(d int) {
	p.mu.Lock()
	p.waiting += d
	p.mu.Unlock()
}
