// Package db opens the relational database and applies the embedded schema
// migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"           // PostgreSQL driver
	"github.com/mattn/go-sqlite3" // SQLite driver for local development and tests

	"github.com/platinummonkey/groundwork/pkg/lazy"
)

// Dialect names as understood by both database/sql and goose
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// DialectOf reports the dialect of an open pool from its driver. Pools on
// other drivers, such as sqlmock, report "".
func DialectOf(conn *sql.DB) string {
	if conn == nil {
		return ""
	}
	switch conn.Driver().(type) {
	case *pq.Driver:
		return DialectPostgres
	case *sqlite3.SQLiteDriver:
		return DialectSQLite
	}
	return ""
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// ParseURL returns the driver name and DSN for a DATABASE_URL. postgres://
// and postgresql:// URLs use lib/pq; sqlite3:// URLs and file: DSNs use
// go-sqlite3.
func ParseURL(url string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DialectPostgres, url, nil
	case strings.HasPrefix(url, "sqlite3://"):
		return DialectSQLite, strings.TrimPrefix(url, "sqlite3://"), nil
	case strings.HasPrefix(url, "file:"):
		return DialectSQLite, url, nil
	case url == "":
		return "", "", fmt.Errorf("database URL is empty")
	default:
		return "", "", fmt.Errorf("unsupported database URL scheme: %q", url)
	}
}

// Open opens and pings a connection pool
func Open(ctx context.Context, cfg ConnectionConfig) (*sql.DB, string, error) {
	driver, dsn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, "", err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DialectSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, driver, nil
}

// Pool is the process wide lazily opened connection pool
type Pool struct {
	value   *lazy.Value[*sql.DB]
	dialect string
}

// NewPool returns a pool that connects on first use
func NewPool(cfg ConnectionConfig) *Pool {
	p := &Pool{}
	p.value = lazy.New("database pool", func(ctx context.Context) (*sql.DB, error) {
		conn, dialect, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p.dialect = dialect
		return conn, nil
	})
	return p
}

// Get returns the shared *sql.DB, connecting if needed
func (p *Pool) Get(ctx context.Context) (*sql.DB, error) {
	return p.value.Get(ctx)
}

// Close closes the pool if it was opened
func (p *Pool) Close(context.Context) error {
	if conn, ok := p.value.Peek(); ok {
		return conn.Close()
	}
	return nil
}

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WithTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Dialect returns the goose dialect of the opened pool, empty before Get
func (p *Pool) Dialect() string {
	if _, ok := p.value.Peek(); !ok {
		return ""
	}
	return p.dialect
}
