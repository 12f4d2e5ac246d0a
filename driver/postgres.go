package driver

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/lib/pq"
)

// Postgres dials PostgreSQL servers through lib/pq. Vendor handles are
// cached per DSN with idle pooling disabled, mirroring the MySQL adapter.
//
// SocketTimeout has no pq connection parameter; per-statement deadlines are
// enforced through context instead. The Instance field maps to the
// search_path option when set.
type Postgres struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewPostgres() *Postgres {
	return &Postgres{dbs: make(map[string]*sql.DB)}
}

func (d *Postgres) Name() string { return "postgres" }

func (d *Postgres) Placeholder() Placeholder { return PlaceholderDollar }

func (d *Postgres) Connect(ctx context.Context, cfg Config) (Conn, error) {
	db, err := d.handle(d.dsn(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.LoginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.LoginTimeout)
		defer cancel()
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

// Close releases the cached vendor handles.
func (d *Postgres) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for dsn, db := range d.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.dbs, dsn)
	}
	return firstErr
}

func (d *Postgres) dsn(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + pqValue(cfg.Host),
		fmt.Sprintf("port=%d", port),
	}
	if cfg.User != "" {
		parts = append(parts, "user="+pqValue(cfg.User))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+pqValue(cfg.Password))
	}
	if cfg.Database != "" {
		parts = append(parts, "dbname="+pqValue(cfg.Database))
	}
	if cfg.Instance != "" {
		parts = append(parts, "search_path="+pqValue(cfg.Instance))
	}
	if _, ok := cfg.Params["sslmode"]; !ok {
		if cfg.TLS {
			parts = append(parts, "sslmode=require")
		} else {
			parts = append(parts, "sslmode=disable")
		}
	}
	if cfg.LoginTimeout > 0 {
		secs := int(cfg.LoginTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", secs))
	}
	if len(cfg.Params) > 0 {
		keys := make([]string, 0, len(cfg.Params))
		for k := range cfg.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+pqValue(cfg.Params[k]))
		}
	}
	return strings.Join(parts, " ")
}

func (d *Postgres) handle(dsn string) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if db, ok := d.dbs[dsn]; ok {
		return db, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(0)
	d.dbs[dsn] = db
	return db, nil
}

// pqValue quotes a keyword/value connection string value per lib/pq rules.
func pqValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
