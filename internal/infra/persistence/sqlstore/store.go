// Package sqlstore implements the datastore contract over database/sql. The
// sqlite and postgres packages open a *sql.DB for their driver and wrap it
// here; every query is written once and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"obscore/internal/datastore"
	"obscore/internal/errs"
	"obscore/pkg/domain"
)

var _ datastore.Backend = (*Store)(nil)

// Store reads facets and series from a relational observation store. Each
// acquired connection is a dedicated *sql.Conn checked out of the pool.
type Store struct {
	db      *sql.DB
	dialect Dialect
	inUse   atomic.Int64
}

// Conn is a pooled connection handed out by Store.Acquire.
type Conn struct {
	raw      *sql.Conn
	released atomic.Bool
}

// Ping verifies the connection is alive.
func (c *Conn) Ping(ctx context.Context) error { return c.raw.PingContext(ctx) }

// New wraps db for dialect d.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the placeholder dialect queries are rebound to.
func (s *Store) Dialect() Dialect { return s.dialect }

// InUse reports the number of acquired and not yet released connections.
func (s *Store) InUse() int64 { return s.inUse.Load() }

// Acquire checks a dedicated connection out of the pool.
func (s *Store) Acquire(ctx context.Context) (datastore.Conn, error) {
	raw, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &errs.ConnectionError{Op: "acquire", Err: err}
	}
	s.inUse.Add(1)
	return &Conn{raw: raw}, nil
}

// Release returns conn to the pool. Releasing twice is an error.
func (s *Store) Release(conn datastore.Conn) error {
	c, ok := conn.(*Conn)
	if !ok || c == nil {
		return &errs.InvalidArgumentError{Argument: "conn", Reason: fmt.Sprintf("foreign connection %T", conn)}
	}
	if !c.released.CompareAndSwap(false, true) {
		return &errs.ConnectionError{Op: "release", Err: fmt.Errorf("connection already released")}
	}
	s.inUse.Add(-1)
	if err := c.raw.Close(); err != nil {
		return &errs.ConnectionError{Op: "release", Err: err}
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// QueryFacet runs the facet query for kind restricted to scope.
func (s *Store) QueryFacet(ctx context.Context, conn datastore.Conn, kind datastore.FacetKind, scope datastore.Scope) ([]datastore.Row, error) {
	q, args, err := facetQuery(kind, scope)
	if err != nil {
		return nil, &errs.InvalidArgumentError{Argument: "kind", Reason: err.Error()}
	}
	return s.query(ctx, conn, "query "+string(kind), q, args)
}

// QuerySeriesChunk returns up to limit observation rows of series after cursor.
func (s *Store) QuerySeriesChunk(ctx context.Context, conn datastore.Conn, series domain.SeriesID, cursor datastore.Cursor, limit int, filter datastore.SeriesFilter) ([]datastore.Row, error) {
	if limit <= 0 {
		return nil, &errs.InvalidArgumentError{Argument: "limit", Reason: "must be positive"}
	}
	q, args := seriesChunkQuery(int64(series), int64(cursor), limit, filter)
	return s.query(ctx, conn, "query series chunk", q, args)
}

// QuerySeries resolves q to the matching series in id order.
func (s *Store) QuerySeries(ctx context.Context, conn datastore.Conn, q datastore.SeriesQuery) ([]datastore.Row, error) {
	stmt, args := seriesQuery(q)
	return s.query(ctx, conn, "query series", stmt, args)
}

func (s *Store) query(ctx context.Context, conn datastore.Conn, op, q string, args []any) ([]datastore.Row, error) {
	c, ok := conn.(*Conn)
	if !ok || c == nil {
		return nil, &errs.InvalidArgumentError{Argument: "conn", Reason: fmt.Sprintf("foreign connection %T", conn)}
	}
	if c.released.Load() {
		return nil, &errs.ConnectionError{Op: op, Err: fmt.Errorf("connection already released")}
	}
	rows, err := c.raw.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, &errs.DatastoreError{Op: op, Err: err}
	}
	defer func() { _ = rows.Close() }()
	out, err := scanRows(rows)
	if err != nil {
		return nil, &errs.DatastoreError{Op: op, Err: err}
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]datastore.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []datastore.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(datastore.Row, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}
