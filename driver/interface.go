// Package driver abstracts vendor database connectivity for sqlrelay.
//
// A Driver dials individual sessions; the caller (the sqlrelay client) owns
// pooling, parameter binding and result streaming. Implementations exist for
// MySQL (go-sql-driver) and PostgreSQL (lib/pq), plus a generic adapter over
// any database/sql handle.
package driver

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Placeholder selects the positional parameter style a driver expects.
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota // ?          (MySQL, SQLite)
	PlaceholderDollar                      // $1, $2, …  (PostgreSQL)
	PlaceholderAtP                         // @p1, @p2…  (SQL Server)
)

// Config describes one logical database endpoint. Two Configs with equal
// Key() may be served by a shared connection pool.
type Config struct {
	Host     string
	Port     int // 0 selects the vendor default port
	Instance string
	User     string
	Password string
	Database string

	// TLS enables encrypted transport. TLSConfig, when set, is handed to
	// the vendor driver as-is; certificate and keystore management stays
	// with the caller.
	TLS       bool
	TLSConfig *tls.Config

	// SocketTimeout bounds individual network reads and writes.
	// Zero means no limit.
	SocketTimeout time.Duration
	// LoginTimeout bounds the initial handshake. Zero means the vendor
	// driver's own default.
	LoginTimeout time.Duration

	// XA requests distributed-transaction coordination where the vendor
	// supports it. Drivers without XA support ignore it.
	XA bool

	// Params carries extra vendor-specific connection attributes.
	Params map[string]string
}

// Key returns a canonical representation of the endpoint configuration,
// used to decide whether two clients may share one pool. Credentials
// participate as a digest so the secret never appears in the key, and a
// custom TLSConfig participates by identity: sessions dialed with different
// passwords or TLS material must never come out of the same pool.
func (c Config) Key() string {
	pw := sha256.Sum256([]byte(c.Password))
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d/%s/%s:%x@%s tls=%t/%p xa=%t st=%s lt=%s",
		c.Host, c.Port, c.Instance, c.User, pw[:8], c.Database,
		c.TLS, c.TLSConfig, c.XA, c.SocketTimeout, c.LoginTimeout)
	if len(c.Params) > 0 {
		keys := make([]string, 0, len(c.Params))
		for k := range c.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, c.Params[k])
		}
	}
	return b.String()
}

// Driver dials dedicated database sessions.
type Driver interface {
	// Name returns the driver name (e.g., "mysql", "postgres").
	Name() string

	// Placeholder reports the positional parameter style of the dialect.
	Placeholder() Placeholder

	// Connect opens one dedicated session to the endpoint. The session is
	// exclusively owned by the caller until Close.
	Connect(ctx context.Context, cfg Config) (Conn, error)
}

// Conn is a single database session. A Conn is not safe for concurrent use;
// the pool guarantees exclusive ownership between acquire and release.
type Conn interface {
	// QueryContext runs a statement that returns rows.
	QueryContext(ctx context.Context, query string, args []any) (Rows, error)

	// ExecContext runs a statement that returns no rows.
	ExecContext(ctx context.Context, query string, args []any) (Result, error)

	// PingContext verifies the session is still alive.
	PingContext(ctx context.Context) error

	// Close tears down the session.
	Close() error
}

// Rows iterates over query results one row at a time.
// It is designed to be memory-efficient and stream-oriented; *sql.Rows
// satisfies it directly.
type Rows interface {
	// Columns returns the column names of the current result set.
	Columns() ([]string, error)

	// Next advances to the next row. Returns false when there are no more
	// rows in the current result set or an error occurs.
	Next() bool

	// Scan copies the columns in the current row into the values pointed
	// at by dest.
	Scan(dest ...any) error

	// Err returns the error, if any, encountered during iteration.
	Err() error

	// NextResultSet advances to the next result set, if any.
	NextResultSet() bool

	// Close closes the cursor and frees resources.
	Close() error
}

// Result reports the outcome of a statement that returns no rows.
// sql.Result satisfies it directly.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
