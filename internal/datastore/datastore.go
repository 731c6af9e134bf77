// Package datastore defines the record-oriented read contract the cache feeder
// and the streaming layer consume. Concrete backends live under
// internal/infra/persistence.
package datastore

import (
	"context"
	"time"

	"obscore/pkg/domain"
)

// Conn is a datastore connection. A Conn is owned by exactly one goroutine
// between Acquire and Release.
type Conn interface {
	Ping(ctx context.Context) error
}

// ConnectionProvider hands out pooled connections.
type ConnectionProvider interface {
	// Acquire blocks until a connection is available or ctx is done.
	Acquire(ctx context.Context) (Conn, error)
	// Release returns conn to the pool. Each acquired conn is released once.
	Release(conn Conn) error
}

// FacetKind names one record-oriented facet query.
type FacetKind string

const (
	// FacetOfferings lists offering ids and names.
	FacetOfferings FacetKind = "offerings"
	// FacetOfferingRelations lists (offering, procedure, phenomenon, feature) tuples.
	FacetOfferingRelations FacetKind = "offering_relations"
	// FacetOfferingExtents aggregates time extents and envelopes per offering.
	FacetOfferingExtents FacetKind = "offering_extents"
	// FacetProcedures lists procedures with their description format and parent.
	FacetProcedures FacetKind = "procedures"
	// FacetFeatures lists features of interest with type and parent.
	FacetFeatures FacetKind = "features"
	// FacetPhenomena lists phenomena joined with the series observing them.
	FacetPhenomena FacetKind = "phenomena"
	// FacetGlobalExtents aggregates time extents and the envelope over all observations.
	FacetGlobalExtents FacetKind = "global_extents"
	// FacetOfferingNames lists localized offering names, one row per locale.
	FacetOfferingNames FacetKind = "offering_names"
)

// Scope restricts offering-keyed facet queries. An empty scope means all offerings.
type Scope struct {
	Offerings []string
}

// All reports whether the scope is unrestricted.
func (s Scope) All() bool { return len(s.Offerings) == 0 }

// Cursor is the id of the last observation delivered from a series; zero starts
// at the beginning.
type Cursor int64

// SeriesFilter narrows a series read to a phenomenon-time window [Begin, End).
// Zero values leave that side unbounded. A non-empty Identifiers list keeps
// only observations carrying one of those identifiers.
type SeriesFilter struct {
	Begin       time.Time
	End         time.Time
	Identifiers []string
}

// SeriesQuery selects series by their procedure, feature, phenomenon and
// offering. Each non-empty list restricts the matching column; empty lists
// match everything. Identifiers restricts the result to series holding at
// least one observation with one of those identifiers.
type SeriesQuery struct {
	Procedures  []string
	Features    []string
	Phenomena   []string
	Offerings   []string
	Identifiers []string
}

// Datastore exposes the raw reads used to populate the content cache and to
// stream series.
type Datastore interface {
	QueryFacet(ctx context.Context, conn Conn, kind FacetKind, scope Scope) ([]Row, error)
	// QuerySeriesChunk returns up to limit observation rows with id > cursor in id order.
	QuerySeriesChunk(ctx context.Context, conn Conn, series domain.SeriesID, cursor Cursor, limit int, filter SeriesFilter) ([]Row, error)
	// QuerySeries returns one row per matching series in series id order.
	QuerySeries(ctx context.Context, conn Conn, q SeriesQuery) ([]Row, error)
}

// Backend bundles a connection provider with the datastore that reads through
// its connections.
type Backend interface {
	ConnectionProvider
	Datastore
	Close() error
}
