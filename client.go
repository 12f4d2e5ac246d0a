// Package sqlrelay is a pooled SQL client engine: it binds typed parameters
// into wire-safe statements, executes queries, DML, batches and stored
// procedures over a bounded connection pool, streams results lazily, and
// maps driver faults into a structured error taxonomy.
package sqlrelay

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexiumindustries/sqlrelay/driver"
	"github.com/lexiumindustries/sqlrelay/internal/pool"
)

// Options configure a Client.
type Options struct {
	Host     string
	Port     int // 0 selects the vendor default
	Instance string
	User     string
	Password string
	Database string

	// TLS enables encrypted transport; TLSConfig optionally carries the
	// caller-managed certificate material.
	TLS       bool
	TLSConfig *tls.Config

	// SocketTimeout bounds individual network reads/writes. Zero means
	// no limit.
	SocketTimeout time.Duration
	// QueryTimeout bounds each statement end to end. Zero or negative
	// means wait indefinitely.
	QueryTimeout time.Duration
	// LoginTimeout bounds the connection handshake. Zero means the
	// vendor driver's default.
	LoginTimeout time.Duration

	// XA requests distributed-transaction coordination where supported.
	XA bool

	// Params carries extra vendor-specific connection attributes.
	Params map[string]string

	// PoolConfig sizes the connection pool. Clients with equal endpoint
	// and pool configuration share one underlying pool unless Pool is
	// set explicitly.
	PoolConfig PoolConfig

	// Pool, when set, is an explicitly shared pool. The client uses it
	// as-is and does not shut it down on Close; the endpoint fields
	// above are ignored for dialing.
	Pool *Pool

	// BatchContinueOnError keeps executing the remaining statements of a
	// batch after one fails. The failure is still reported through a
	// BatchExecuteError; whether earlier statements stay committed is
	// engine behavior, not a guarantee of this library.
	BatchContinueOnError bool

	// Logger receives structured client logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) driverConfig() driver.Config {
	return driver.Config{
		Host:          o.Host,
		Port:          o.Port,
		Instance:      o.Instance,
		User:          o.User,
		Password:      o.Password,
		Database:      o.Database,
		TLS:           o.TLS,
		TLSConfig:     o.TLSConfig,
		SocketTimeout: o.SocketTimeout,
		LoginTimeout:  o.LoginTimeout,
		XA:            o.XA,
		Params:        o.Params,
	}
}

// Client represents one logical database endpoint backed by a connection
// pool. A Client is safe for concurrent use; every operation checks out its
// own connection. Once closed it permanently rejects all operations.
type Client struct {
	id   string
	drv  driver.Driver
	opts Options
	log  *slog.Logger

	pool    *pool.Pool
	poolKey string // registry key; empty when the pool is caller-owned

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup // in-flight connection acquisitions
}

// Open creates a Client for the endpoint described by opts. No connection
// is dialed eagerly unless PoolConfig.MinIdleConns asks for warm-up.
func Open(drv driver.Driver, opts Options) (*Client, error) {
	if drv == nil {
		return nil, appErrorf("nil driver")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Client{
		id:   uuid.NewString(),
		drv:  drv,
		opts: opts,
	}
	c.log = opts.Logger.With("client_id", c.id, "driver", drv.Name())
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if opts.Pool != nil {
		c.pool = opts.Pool.inner
	} else {
		cfg := opts.driverConfig()
		key := fmt.Sprintf("%s|%s|%s", drv.Name(), cfg.Key(), opts.PoolConfig.key())
		dial := func(ctx context.Context) (driver.Conn, error) {
			return drv.Connect(ctx, cfg)
		}
		c.pool = pool.DefaultRegistry.Retain(key, opts.PoolConfig.internal(), dial, c.log)
		c.poolKey = key
	}

	c.log.Info("client opened", "host", opts.Host, "database", opts.Database)
	return c, nil
}

// Close waits for in-flight connection acquisitions, cancels any in-flight
// network reads, and flips the client inactive. The transition is
// irreversible: every later operation fails with an ApplicationError before
// touching the network. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if c.poolKey != "" {
		pool.DefaultRegistry.Release(c.poolKey)
	}
	c.log.Info("client closed")
	return nil
}

// Ping checks out a connection and verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	l, err := c.begin(ctx)
	if err != nil {
		return err
	}
	err = l.conn.PingContext(l.ctx)
	l.release(isBroken(err))
	return classify(err)
}

// Stats reports usage of the client's pool.
func (c *Client) Stats() PoolStats {
	s := c.pool.Stats()
	return PoolStats{Open: s.Open, Idle: s.Idle, Waiting: s.Waiting}
}

// begin is the shared connection-acquisition protocol. The closed check and
// the wait-group registration happen under the read lock, making the
// check-then-dispatch window atomic with respect to Close.
func (c *Client) begin(ctx context.Context) (*lease, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, &ApplicationError{msg: "operation on closed client", err: ErrClientClosed}
	}
	c.wg.Add(1)
	c.mu.RUnlock()
	defer c.wg.Done()

	opCtx, cancel := c.opContext(ctx)
	conn, err := c.pool.Acquire(opCtx)
	if err != nil {
		cancel()
		return nil, classify(err)
	}
	c.log.Debug("connection acquired", "conn_id", conn.ID())
	return &lease{conn: conn, ctx: opCtx, cancel: cancel, pool: c.pool, log: c.log}, nil
}

// opContext derives the per-operation context: bounded by the caller's ctx,
// the query timeout, and the client lifetime (Close cancels it).
func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var cancel context.CancelFunc
	if c.opts.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.opts.QueryTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// lease is one checked-out connection plus its operation context. release
// returns the connection to the pool exactly once, no matter how many paths
// reach it.
type lease struct {
	conn   *pool.Conn
	ctx    context.Context
	cancel context.CancelFunc
	pool   *pool.Pool
	log    *slog.Logger
	once   sync.Once
}

func (l *lease) release(broken bool) {
	l.once.Do(func() {
		l.pool.Release(l.conn, broken)
		l.cancel()
		l.log.Debug("connection released", "conn_id", l.conn.ID(), "broken", broken)
	})
}
