package driver

import (
	"context"
	"crypto/tls"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDBQueryStreamsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	drv := OpenDB("mock", PlaceholderQuestion, db)
	assert.Equal(t, "mock", drv.Name())
	assert.Equal(t, PlaceholderQuestion, drv.Placeholder())

	conn, err := drv.Connect(context.Background(), Config{})
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.QueryContext(context.Background(), "SELECT id FROM t", nil)
	require.NoError(t, err)

	var got []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		got = append(got, id)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []int64{1, 2}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenDBExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE t SET a").WithArgs("x").WillReturnResult(sqlmock.NewResult(0, 3))

	conn, err := OpenDB("mock", PlaceholderQuestion, db).Connect(context.Background(), Config{})
	require.NoError(t, err)
	defer conn.Close()

	res, err := conn.ExecContext(context.Background(), "UPDATE t SET a = ?", []any{"x"})
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDSN(t *testing.T) {
	d := NewMySQL()
	dsn, err := d.dsn(Config{
		Host:          "db1.internal",
		Port:          3307,
		User:          "svc",
		Password:      "secret",
		Database:      "orders",
		LoginTimeout:  5 * time.Second,
		SocketTimeout: 2 * time.Second,
		Params:        map[string]string{"charset": "utf8mb4"},
	})
	require.NoError(t, err)
	assert.Contains(t, dsn, "svc:secret@tcp(db1.internal:3307)/orders")
	assert.Contains(t, dsn, "timeout=5s")
	assert.Contains(t, dsn, "readTimeout=2s")
	assert.Contains(t, dsn, "writeTimeout=2s")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.NotContains(t, dsn, "tls=")
}

func TestMySQLDSNDefaultPortAndTLS(t *testing.T) {
	d := NewMySQL()
	dsn, err := d.dsn(Config{Host: "db1", TLS: true})
	require.NoError(t, err)
	assert.Contains(t, dsn, "tcp(db1:3306)")
	assert.Contains(t, dsn, "tls=true")
}

func TestPostgresDSN(t *testing.T) {
	d := NewPostgres()
	dsn := d.dsn(Config{
		Host:         "pg1",
		User:         "svc",
		Password:     "p word",
		Database:     "orders",
		Instance:     "reporting",
		LoginTimeout: 5 * time.Second,
	})
	assert.Contains(t, dsn, "host=pg1")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "user=svc")
	assert.Contains(t, dsn, `password='p word'`)
	assert.Contains(t, dsn, "dbname=orders")
	assert.Contains(t, dsn, "search_path=reporting")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "connect_timeout=5")
}

func TestPostgresDSNTLSAndParamOverride(t *testing.T) {
	d := NewPostgres()

	dsn := d.dsn(Config{Host: "pg1", TLS: true})
	assert.Contains(t, dsn, "sslmode=require")

	dsn = d.dsn(Config{Host: "pg1", TLS: true, Params: map[string]string{"sslmode": "verify-full"}})
	assert.NotContains(t, dsn, "sslmode=require")
	assert.Contains(t, dsn, "sslmode=verify-full")
}

func TestPQValueQuoting(t *testing.T) {
	assert.Equal(t, "plain", pqValue("plain"))
	assert.Equal(t, "''", pqValue(""))
	assert.Equal(t, `'two words'`, pqValue("two words"))
	assert.Equal(t, `'it\'s'`, pqValue("it's"))
}

func TestConfigKeySeparatesCredentials(t *testing.T) {
	a := Config{Host: "h", User: "svc", Password: "alpha", Database: "d"}
	b := Config{Host: "h", User: "svc", Password: "beta", Database: "d"}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotContains(t, a.Key(), "alpha")
	assert.NotContains(t, b.Key(), "beta")

	custom := Config{Host: "h", TLS: true, TLSConfig: &tls.Config{}}
	plain := Config{Host: "h", TLS: true}
	assert.NotEqual(t, custom.Key(), plain.Key())
}

func TestConfigKeyIsOrderIndependent(t *testing.T) {
	a := Config{Host: "h", Database: "d", Params: map[string]string{"a": "1", "b": "2"}}
	b := Config{Host: "h", Database: "d", Params: map[string]string{"b": "2", "a": "1"}}
	assert.Equal(t, a.Key(), b.Key())

	c := Config{Host: "h", Database: "other"}
	assert.NotEqual(t, a.Key(), c.Key())
	assert.True(t, strings.Contains(a.Key(), "a=1"))
}
