package driver

import (
	"context"
	"database/sql"
)

// OpenDB wraps an existing database/sql handle so every Connect hands out a
// dedicated session from it. Useful for dialects without a native adapter
// here, and for tests driving the stack through sqlmock.
//
// The caller keeps ownership of db; Config passed to Connect is ignored
// because the handle already embeds the endpoint.
func OpenDB(name string, ph Placeholder, db *sql.DB) Driver {
	return &sqlDriver{name: name, ph: ph, db: db}
}

type sqlDriver struct {
	name string
	ph   Placeholder
	db   *sql.DB
}

func (d *sqlDriver) Name() string { return d.name }

func (d *sqlDriver) Placeholder() Placeholder { return d.ph }

func (d *sqlDriver) Connect(ctx context.Context, _ Config) (Conn, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

// sqlConn adapts one dedicated *sql.Conn session to the Conn interface.
// Shared by the MySQL and Postgres drivers.
type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) QueryContext(ctx context.Context, query string, args []any) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// *sql.Rows satisfies Rows directly.
	return rows, nil
}

func (c *sqlConn) ExecContext(ctx context.Context, query string, args []any) (Result, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *sqlConn) PingContext(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}
