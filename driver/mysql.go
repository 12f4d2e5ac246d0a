package driver

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net"
	"strconv"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQL dials MySQL-compatible servers through go-sql-driver/mysql.
// One instance may serve any number of endpoints; vendor handles are cached
// per DSN with idle pooling disabled, so the sqlrelay pool is the only
// pooling layer and Close on a session really closes the wire connection.
//
// The Instance config field has no MySQL equivalent and is ignored.
type MySQL struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
	tls map[*tls.Config]string
}

func NewMySQL() *MySQL {
	return &MySQL{
		dbs: make(map[string]*sql.DB),
		tls: make(map[*tls.Config]string),
	}
}

func (d *MySQL) Name() string { return "mysql" }

func (d *MySQL) Placeholder() Placeholder { return PlaceholderQuestion }

func (d *MySQL) Connect(ctx context.Context, cfg Config) (Conn, error) {
	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, err
	}
	db, err := d.handle(dsn)
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

// Close releases the cached vendor handles. Sessions already checked out
// remain usable until closed individually.
func (d *MySQL) Close() error {
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

func (d *MySQL) dsn(cfg Config) (string, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.Timeout = cfg.LoginTimeout
	mc.ReadTimeout = cfg.SocketTimeout
	mc.WriteTimeout = cfg.SocketTimeout
	mc.ParseTime = true
	if cfg.TLS {
		name, err := d.tlsName(cfg.TLSConfig)
		if err != nil {
			return "", err
		}
		mc.TLSConfig = name
	}
	if len(cfg.Params) > 0 {
		mc.Params = make(map[string]string, len(cfg.Params))
		for k, v := range cfg.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN(), nil
}

func (d *MySQL) handle(dsn string) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if db, ok := d.dbs[dsn]; ok {
		return db, nil
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	// Returned sessions must not linger in a second pool.
	db.SetMaxIdleConns(0)
	d.dbs[dsn] = db
	return db, nil
}

// tlsName registers a caller-supplied tls.Config with the vendor driver
// under a unique name, once per config.
func (d *MySQL) tlsName(tc *tls.Config) (string, error) {
	if tc == nil {
		return "true", nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if name, ok := d.tls[tc]; ok {
		return name, nil
	}
	name := "sqlrelay-" + uuid.NewString()
	if err := mysql.RegisterTLSConfig(name, tc); err != nil {
		return "", err
	}
	d.tls[tc] = name
	return name, nil
}
