// Package memory serves a fixture dataset through the datastore contract
// without a database. Rows mirror the SQL backend column for column, and
// hooks let tests inject faults at acquisition, facet and series reads.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"obscore/internal/datastore"
	"obscore/internal/errs"
	"obscore/internal/infra/persistence/fixture"
	"obscore/pkg/domain"
)

var _ datastore.Backend = (*Store)(nil)

// Faults are optional hooks consulted on every call. A hook may return an
// error to fail the call or panic to simulate a broken driver.
type Faults struct {
	Acquire func() error
	Facet   func(kind datastore.FacetKind, scope datastore.Scope) error
	Series  func(series domain.SeriesID, cursor datastore.Cursor) error
	Resolve func(q datastore.SeriesQuery) error
	// Rows may rewrite facet rows before they are returned.
	Rows func(kind datastore.FacetKind, rows []datastore.Row) []datastore.Row
}

// Store is an in-memory datastore and connection provider.
type Store struct {
	mu     sync.RWMutex
	ds     fixture.Dataset
	faults Faults

	nextID   atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
	closed   atomic.Bool
}

// Conn is a connection handed out by Store.Acquire.
type Conn struct {
	id       int64
	released atomic.Bool
}

// Ping reports an error once the connection has been released.
func (c *Conn) Ping(context.Context) error {
	if c.released.Load() {
		return fmt.Errorf("connection %d released", c.id)
	}
	return nil
}

// New returns a store serving ds.
func New(ds fixture.Dataset) *Store {
	return &Store{ds: ds}
}

// Update mutates the served dataset under the write lock.
func (s *Store) Update(fn func(ds *fixture.Dataset)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ds)
}

// SetFaults replaces the fault hooks.
func (s *Store) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// Acquired reports how many connections were handed out.
func (s *Store) Acquired() int64 { return s.acquired.Load() }

// Released reports how many connections were returned.
func (s *Store) Released() int64 { return s.released.Load() }

// InUse reports outstanding connections.
func (s *Store) InUse() int64 { return s.acquired.Load() - s.released.Load() }

// Acquire hands out a new connection.
func (s *Store) Acquire(ctx context.Context) (datastore.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errs.ConnectionError{Op: "acquire", Err: err}
	}
	if s.closed.Load() {
		return nil, &errs.ConnectionError{Op: "acquire", Err: fmt.Errorf("store closed")}
	}
	s.mu.RLock()
	hook := s.faults.Acquire
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(); err != nil {
			return nil, &errs.ConnectionError{Op: "acquire", Err: err}
		}
	}
	s.acquired.Add(1)
	return &Conn{id: s.nextID.Add(1)}, nil
}

// Release returns conn. Releasing twice is an error.
func (s *Store) Release(conn datastore.Conn) error {
	c, ok := conn.(*Conn)
	if !ok || c == nil {
		return &errs.InvalidArgumentError{Argument: "conn", Reason: fmt.Sprintf("foreign connection %T", conn)}
	}
	if !c.released.CompareAndSwap(false, true) {
		return &errs.ConnectionError{Op: "release", Err: fmt.Errorf("connection %d already released", c.id)}
	}
	s.released.Add(1)
	return nil
}

// Close rejects further acquisitions.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func checkConn(conn datastore.Conn, op string) error {
	c, ok := conn.(*Conn)
	if !ok || c == nil {
		return &errs.InvalidArgumentError{Argument: "conn", Reason: fmt.Sprintf("foreign connection %T", conn)}
	}
	if c.released.Load() {
		return &errs.ConnectionError{Op: op, Err: fmt.Errorf("connection %d already released", c.id)}
	}
	return nil
}

// QueryFacet computes the rows the SQL backend would return for kind.
func (s *Store) QueryFacet(ctx context.Context, conn datastore.Conn, kind datastore.FacetKind, scope datastore.Scope) ([]datastore.Row, error) {
	op := "query " + string(kind)
	if err := checkConn(conn, op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &errs.DatastoreError{Op: op, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.faults.Facet != nil {
		if err := s.faults.Facet(kind, scope); err != nil {
			return nil, &errs.DatastoreError{Op: op, Err: err}
		}
	}
	var rows []datastore.Row
	switch kind {
	case datastore.FacetOfferings:
		rows = s.offeringRows(scope)
	case datastore.FacetOfferingRelations:
		rows = s.relationRows(scope)
	case datastore.FacetOfferingExtents:
		rows = s.offeringExtentRows(scope)
	case datastore.FacetProcedures:
		rows = s.procedureRows()
	case datastore.FacetFeatures:
		rows = s.featureRows()
	case datastore.FacetPhenomena:
		rows = s.phenomenonRows()
	case datastore.FacetGlobalExtents:
		rows = s.globalExtentRows()
	case datastore.FacetOfferingNames:
		rows = s.offeringNameRows(scope)
	default:
		return nil, &errs.InvalidArgumentError{Argument: "kind", Reason: fmt.Sprintf("unknown facet %q", kind)}
	}
	if s.faults.Rows != nil {
		rows = s.faults.Rows(kind, rows)
	}
	return rows, nil
}

// QuerySeriesChunk returns up to limit observation rows of series after cursor.
func (s *Store) QuerySeriesChunk(ctx context.Context, conn datastore.Conn, series domain.SeriesID, cursor datastore.Cursor, limit int, filter datastore.SeriesFilter) ([]datastore.Row, error) {
	const op = "query series chunk"
	if err := checkConn(conn, op); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, &errs.InvalidArgumentError{Argument: "limit", Reason: "must be positive"}
	}
	if err := ctx.Err(); err != nil {
		return nil, &errs.DatastoreError{Op: op, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.faults.Series != nil {
		if err := s.faults.Series(series, cursor); err != nil {
			return nil, &errs.DatastoreError{Op: op, Err: err}
		}
	}
	var begin, end int64
	hasBegin, hasEnd := !filter.Begin.IsZero(), !filter.End.IsZero()
	if hasBegin {
		begin = filter.Begin.UnixMilli()
	}
	if hasEnd {
		end = filter.End.UnixMilli()
	}
	identifiers := stringSet(filter.Identifiers)
	var matched []fixture.Observation
	for _, o := range s.ds.Observations {
		if o.SeriesID != int64(series) || o.ID <= int64(cursor) {
			continue
		}
		if identifiers != nil && !identifiers[o.Identifier] {
			continue
		}
		if hasBegin && o.PhenomenonTimeStart < begin {
			continue
		}
		if hasEnd && o.PhenomenonTimeStart >= end {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	rows := make([]datastore.Row, len(matched))
	for i, o := range matched {
		rows[i] = observationRow(o)
	}
	return rows, nil
}

// QuerySeries resolves q against the dataset's series in id order.
func (s *Store) QuerySeries(ctx context.Context, conn datastore.Conn, q datastore.SeriesQuery) ([]datastore.Row, error) {
	const op = "query series"
	if err := checkConn(conn, op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &errs.DatastoreError{Op: op, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.faults.Resolve != nil {
		if err := s.faults.Resolve(q); err != nil {
			return nil, &errs.DatastoreError{Op: op, Err: err}
		}
	}
	procedures, features := stringSet(q.Procedures), stringSet(q.Features)
	phenomena, offerings := stringSet(q.Phenomena), stringSet(q.Offerings)
	var holding map[int64]bool
	if ids := stringSet(q.Identifiers); ids != nil {
		holding = make(map[int64]bool)
		for _, o := range s.ds.Observations {
			if ids[o.Identifier] {
				holding[o.SeriesID] = true
			}
		}
	}
	matches := func(set map[string]bool, v string) bool { return set == nil || set[v] }

	var matched []fixture.Series
	for _, sr := range s.ds.Series {
		if !matches(procedures, sr.ProcedureID) || !matches(features, sr.FeatureID) ||
			!matches(phenomena, sr.PhenomenonID) || !matches(offerings, sr.OfferingID) {
			continue
		}
		if holding != nil && !holding[sr.ID] {
			continue
		}
		matched = append(matched, sr)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	rows := make([]datastore.Row, len(matched))
	for i, sr := range matched {
		rows[i] = datastore.Row{
			datastore.ColSeriesID:     sr.ID,
			datastore.ColProcedureID:  sr.ProcedureID,
			datastore.ColFeatureID:    sr.FeatureID,
			datastore.ColPhenomenonID: sr.PhenomenonID,
			datastore.ColOfferingID:   sr.OfferingID,
		}
	}
	return rows, nil
}

// stringSet returns nil for an empty list so callers can treat nil as "any".
func stringSet(in []string) map[string]bool {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]bool, len(in))
	for _, v := range in {
		out[v] = true
	}
	return out
}

func observationRow(o fixture.Observation) datastore.Row {
	return datastore.Row{
		datastore.ColID:                  o.ID,
		datastore.ColIdentifier:          nullString(o.Identifier),
		datastore.ColSeriesID:            o.SeriesID,
		datastore.ColPhenomenonTimeStart: o.PhenomenonTimeStart,
		datastore.ColPhenomenonTimeEnd:   nullInt(o.PhenomenonTimeEnd),
		datastore.ColResultTime:          nullInt(o.ResultTime),
		datastore.ColValue:               nullFloat(o.Value),
		datastore.ColUnit:                nullString(o.Unit),
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
