package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

func TestStubDBAnswersScriptedQueries(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	t.Cleanup(func() { _ = db.Close() })

	conn.Script(
		StubResult{Match: "FROM offerings", Columns: []string{"offering_id", "name"}, Rows: [][]driver.Value{{"O1", "One"}}},
		StubResult{Match: "FROM broken", Err: errors.New("boom")},
	)
	if _, err := db.ExecContext(ctx, "CREATE TABLE x (id TEXT)"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	rows, err := db.QueryContext(ctx, "SELECT id AS offering_id, name FROM offerings WHERE id = $1", "O1")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	var id, name string
	if !rows.Next() {
		t.Fatalf("expected one row")
	}
	if err := rows.Scan(&id, &name); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	_ = rows.Close()
	if id != "O1" || name != "One" {
		t.Fatalf("unexpected row %s %s", id, name)
	}
	if _, err := db.QueryContext(ctx, "SELECT 1 FROM broken"); err == nil {
		t.Fatalf("expected scripted error")
	}
	if _, err := db.QueryContext(ctx, "SELECT 1 FROM unscripted"); err == nil {
		t.Fatalf("expected missing script error")
	}
	execs, queries := conn.Recorded()
	if len(execs) != 1 || len(queries) != 3 {
		t.Fatalf("unexpected recordings execs=%v queries=%v", execs, queries)
	}
	if conn.Args[0][0] != "O1" {
		t.Fatalf("expected recorded arg, got %v", conn.Args[0])
	}
}
