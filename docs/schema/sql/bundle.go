// Package sqldocs exposes the observation store DDL directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL for the observation store.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL for the observation store.
//
//go:embed postgres.sql
var Postgres string
