package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"obscore/internal/datastore"
	"obscore/internal/errs"
	"obscore/internal/infra/persistence/postgres/testutil"
	"obscore/internal/infra/persistence/sqlstore"
)

func TestOpenAppliesSchemaAndUsesDefaults(t *testing.T) {
	db, conn := testutil.NewStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	defer restore()

	store, err := Open(context.Background(), "", Options{PoolSize: 4, ApplySchema: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if gotDriver != "pgx" || gotDSN != defaultDSN {
		t.Fatalf("unexpected open args %s %s", gotDriver, gotDSN)
	}
	if store.Dialect() != sqlstore.DialectPostgres {
		t.Fatalf("expected postgres dialect")
	}
	execs, _ := conn.Recorded()
	want := sqlstore.SplitStatements(sqlstore.PostgresSchema())
	if len(execs) != len(want) {
		t.Fatalf("expected %d DDL statements, got %d", len(want), len(execs))
	}
	if !strings.Contains(strings.ToUpper(execs[0]), "CREATE TABLE") {
		t.Fatalf("expected CREATE TABLE first, got %s", execs[0])
	}
}

func TestOpenFailures(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("dial") })
	var connErr *errs.ConnectionError
	if _, err := Open(context.Background(), "dsn", Options{}); !errors.As(err, &connErr) || connErr.Op != "open postgres" {
		t.Fatalf("expected open connection error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	if _, err := Open(context.Background(), "dsn", Options{}); !errors.As(err, &connErr) || connErr.Op != "ping postgres" {
		t.Fatalf("expected ping connection error, got %v", err)
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.FailExec = true
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := Open(context.Background(), "dsn", Options{ApplySchema: true}); err == nil || !strings.Contains(err.Error(), "apply postgres schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestQueriesAreReboundToDollarPlaceholders(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := Open(ctx, "dsn", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	conn.Script(
		testutil.StubResult{Match: "FROM offerings", Columns: []string{"offering_id", "name"}, Rows: [][]driver.Value{{"O1", "One"}}},
		testutil.StubResult{Match: "FROM observations", Columns: []string{"id", "identifier", "series_id", "phenomenon_time_start", "phenomenon_time_end", "result_time", "numeric_value", "unit"},
			Rows: [][]driver.Value{{int64(5), "x", int64(1), int64(1000), nil, nil, 1.5, "m"}}},
	)

	c, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	rows, err := store.QueryFacet(ctx, c, datastore.FacetOfferings, datastore.Scope{Offerings: []string{"O1", "O2"}})
	if err != nil {
		t.Fatalf("QueryFacet: %v", err)
	}
	if len(rows) != 1 || rows[0][datastore.ColOfferingID] != "O1" {
		t.Fatalf("unexpected rows %v", rows)
	}
	filter := datastore.SeriesFilter{Begin: time.UnixMilli(0), End: time.UnixMilli(5000)}
	chunk, err := store.QuerySeriesChunk(ctx, c, 1, 0, 10, filter)
	if err != nil {
		t.Fatalf("QuerySeriesChunk: %v", err)
	}
	obs, err := chunk[0].Observation()
	if err != nil || obs.ID != 5 || obs.Value != 1.5 {
		t.Fatalf("unexpected observation %+v %v", obs, err)
	}
	if err := store.Release(c); err != nil {
		t.Fatalf("Release: %v", err)
	}

	_, queries := conn.Recorded()
	if !strings.Contains(queries[0], "id IN ($1, $2)") {
		t.Fatalf("expected rebound IN clause, got %s", queries[0])
	}
	if !strings.Contains(queries[1], "LIMIT $5") || strings.Contains(queries[1], "?") {
		t.Fatalf("expected rebound chunk query, got %s", queries[1])
	}
}
