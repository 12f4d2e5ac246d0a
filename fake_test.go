package sqlrelay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/lexiumindustries/sqlrelay/driver"
)

// fakeDriver is an in-memory driver for exercising the client without a
// server. Query and exec behavior is injected per test.
type fakeDriver struct {
	mu        sync.Mutex
	dials     int
	passwords []string
	queryFn   func(query string, args []any) (driver.Rows, error)
	execFn    func(query string, args []any) (driver.Result, error)
	pingFn    func(ctx context.Context) error
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Placeholder() driver.Placeholder { return driver.PlaceholderQuestion }

func (d *fakeDriver) Connect(_ context.Context, cfg driver.Config) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.passwords = append(d.passwords, cfg.Password)
	return &fakeConn{d: d}, nil
}

func (d *fakeDriver) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDriver) dialedPasswords() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.passwords...)
}

type fakeConn struct {
	d *fakeDriver
}

func (c *fakeConn) QueryContext(_ context.Context, query string, args []any) (driver.Rows, error) {
	if c.d.queryFn == nil {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	return c.d.queryFn(query, args)
}

func (c *fakeConn) ExecContext(_ context.Context, query string, args []any) (driver.Result, error) {
	if c.d.execFn == nil {
		return nil, fmt.Errorf("unexpected exec %q", query)
	}
	return c.d.execFn(query, args)
}

func (c *fakeConn) PingContext(ctx context.Context) error {
	if c.d.pingFn != nil {
		return c.d.pingFn(ctx)
	}
	return nil
}

func (c *fakeConn) Close() error { return nil }

type fakeResult struct {
	affected int64
	insertID int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.insertID, nil }

func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

// fakeRows serves one or more scripted result sets.
type fakeSet struct {
	cols []string
	rows [][]any
}

type fakeRows struct {
	sets   []fakeSet
	set    int
	idx    int
	closed bool
	err    error
}

func singleSet(cols []string, rows ...[]any) *fakeRows {
	return &fakeRows{sets: []fakeSet{{cols: cols, rows: rows}}}
}

func (r *fakeRows) Columns() ([]string, error) { return r.sets[r.set].cols, nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.set >= len(r.sets) || r.idx >= len(r.sets[r.set].rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.sets[r.set].rows[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		*(d.(*any)) = row[i]
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) NextResultSet() bool {
	if r.closed || r.set+1 >= len(r.sets) {
		return false
	}
	r.set++
	r.idx = 0
	return true
}

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient opens a client over the fake driver with a unique endpoint
// per test, so registry pools never leak between tests.
func newTestClient(name string, d *fakeDriver, mutate func(*Options)) (*Client, error) {
	opts := Options{
		Host:     "db.internal",
		Database: name,
		Logger:   quietLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return Open(d, opts)
}
