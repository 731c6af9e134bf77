// Package sqlite opens the observation store on an embedded SQLite file using
// the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"obscore/internal/errs"
	"obscore/internal/infra/persistence/sqlstore"
)

const defaultPath = "obscore.db"

// Options tune the connection pool and startup behaviour.
type Options struct {
	// PoolSize caps open connections; zero leaves database/sql's default.
	PoolSize int
	// ApplySchema creates missing tables on startup.
	ApplySchema bool
}

// Open opens (creating if needed) the SQLite file at path.
func Open(ctx context.Context, path string, opts Options) (*sqlstore.Store, error) {
	if path == "" {
		path = defaultPath
	}
	if path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return nil, &errs.ConfigurationError{Field: "datastore.sqlitePath", Reason: "in-memory databases are not shared between pooled connections"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, &errs.ConnectionError{Op: "open sqlite", Err: err}
	}
	if opts.PoolSize > 0 {
		db.SetMaxOpenConns(opts.PoolSize)
		db.SetMaxIdleConns(opts.PoolSize)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &errs.ConnectionError{Op: "ping sqlite", Err: err}
	}
	if opts.ApplySchema {
		if err := sqlstore.ApplySchema(ctx, db, sqlstore.SQLiteSchema()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return sqlstore.New(db, sqlstore.DialectSQLite), nil
}

// dsn adds a busy timeout so concurrent readers wait on the file lock instead
// of failing with SQLITE_BUSY.
func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)"
}
