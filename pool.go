package sqlrelay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexiumindustries/sqlrelay/driver"
	"github.com/lexiumindustries/sqlrelay/internal/pool"
)

// PoolConfig sizes a connection pool. The zero value takes the documented
// defaults.
type PoolConfig struct {
	// MaxOpenConns caps concurrently checked-out connections. Default 10.
	MaxOpenConns int
	// MinIdleConns pre-dials this many connections on pool creation.
	MinIdleConns int
	// ConnMaxLifetime retires connections this long after dialing.
	// Zero means unlimited.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime retires connections idle for this long. Zero means
	// unlimited.
	ConnMaxIdleTime time.Duration
	// AcquireTimeout bounds how long an operation waits for pool
	// capacity before failing with a ConnectionError. Default 30s.
	AcquireTimeout time.Duration
}

func (c PoolConfig) internal() pool.Config {
	return pool.Config{
		MaxOpen:        c.MaxOpenConns,
		MinIdle:        c.MinIdleConns,
		MaxLifetime:    c.ConnMaxLifetime,
		MaxIdleTime:    c.ConnMaxIdleTime,
		AcquireTimeout: c.AcquireTimeout,
	}
}

func (c PoolConfig) key() string {
	return fmt.Sprintf("%d/%d/%s/%s/%s",
		c.MaxOpenConns, c.MinIdleConns, c.ConnMaxLifetime, c.ConnMaxIdleTime, c.AcquireTimeout)
}

// PoolStats is a point-in-time snapshot of pool usage.
type PoolStats struct {
	Open    int
	Idle    int
	Waiting int
}

// Pool is an explicitly shared connection pool. Pass it through
// Options.Pool to back several clients with one pool regardless of their
// other settings; the caller owns its lifetime.
type Pool struct {
	inner *pool.Pool
}

// NewPool creates a standalone pool dialing the endpoint described by opts.
func NewPool(drv driver.Driver, opts Options) *Pool {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := opts.driverConfig()
	dial := func(ctx context.Context) (driver.Conn, error) {
		return drv.Connect(ctx, cfg)
	}
	return &Pool{inner: pool.New(opts.PoolConfig.internal(), dial, log)}
}

// Stats reports current pool usage.
func (p *Pool) Stats() PoolStats {
	s := p.inner.Stats()
	return PoolStats{Open: s.Open, Idle: s.Idle, Waiting: s.Waiting}
}

// Close shuts the pool down; idle connections are closed immediately and
// checked-out connections on release.
func (p *Pool) Close() {
	p.inner.Shutdown()
}
