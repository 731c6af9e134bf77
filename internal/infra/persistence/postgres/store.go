// Package postgres opens the observation store on PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"obscore/internal/errs"
	"obscore/internal/infra/persistence/sqlstore"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/obscore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Options tune the connection pool and startup behaviour.
type Options struct {
	// PoolSize caps open connections; zero leaves database/sql's default.
	PoolSize int
	// ApplySchema creates missing tables on startup.
	ApplySchema bool
}

// Open connects to dsn (falls back to defaultDSN), verifies the connection and
// optionally applies the observation store DDL.
func Open(ctx context.Context, dsn string, opts Options) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, &errs.ConnectionError{Op: "open postgres", Err: err}
	}
	if opts.PoolSize > 0 {
		db.SetMaxOpenConns(opts.PoolSize)
		db.SetMaxIdleConns(opts.PoolSize)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &errs.ConnectionError{Op: "ping postgres", Err: err}
	}
	if opts.ApplySchema {
		if err := sqlstore.ApplySchema(ctx, db, sqlstore.PostgresSchema()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return sqlstore.New(db, sqlstore.DialectPostgres), nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
