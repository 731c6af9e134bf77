package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"obscore/internal/datastore"
	"obscore/internal/errs"
	"obscore/internal/infra/persistence/fixture"
	"obscore/internal/infra/persistence/memory"
	"obscore/pkg/domain"
)

func observationIDs(obs []domain.Observation) []int64 {
	out := make([]int64, len(obs))
	for i, o := range obs {
		out[i] = o.ID
	}
	return out
}

func sameIDs(got []domain.Observation, want []int64) bool {
	ids := observationIDs(got)
	if len(ids) != len(want) {
		return false
	}
	for i := range want {
		if ids[i] != want[i] {
			return false
		}
	}
	return true
}

func TestOpenQueryStreamsEveryMatchedSeries(t *testing.T) {
	ctx := context.Background()
	store := memory.New(fixture.Sample())
	seq, err := newSource(t, store, Config{ChunkSize: 2}).OpenQuery(ctx, datastore.SeriesQuery{Procedures: []string{"sensor-b"}}, datastore.SeriesFilter{})
	if err != nil {
		t.Fatalf("OpenQuery: %v", err)
	}
	qs, ok := seq.(*QueryStream)
	if !ok {
		t.Fatalf("expected *QueryStream without dedup, got %T", seq)
	}
	if got := qs.Series(); len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 || got[1].PhenomenonID != "humidity" {
		t.Fatalf("unexpected resolved series %+v", got)
	}
	got, err := Collect(ctx, seq)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !sameIDs(got, []int64{3, 4, 5, 6}) {
		t.Fatalf("unexpected observations %v", observationIDs(got))
	}
	// one connection to resolve, one per series
	if store.Acquired() != 3 || store.InUse() != 0 {
		t.Fatalf("expected 3 balanced acquisitions, got acquired=%d in use=%d", store.Acquired(), store.InUse())
	}
}

func TestOpenQueryRejectsTooManySeries(t *testing.T) {
	ctx := context.Background()
	store := memory.New(fixture.Sample())
	src := newSource(t, store, Config{ChunkSize: 10, MaxSeries: 1})
	_, err := src.OpenQuery(ctx, datastore.SeriesQuery{Phenomena: []string{"air_temperature"}}, datastore.SeriesFilter{})
	var tooMany *errs.TooManySeriesError
	if !errors.As(err, &tooMany) || tooMany.Limit != 1 || tooMany.Found != 2 {
		t.Fatalf("expected TooManySeriesError{1 2}, got %v", err)
	}
	if store.Acquired() != 1 || store.Released() != 1 || store.InUse() != 0 {
		t.Fatalf("rejection leaked a connection: acquired=%d released=%d", store.Acquired(), store.Released())
	}

	seq, err := src.OpenQuery(ctx, datastore.SeriesQuery{Phenomena: []string{"humidity"}}, datastore.SeriesFilter{})
	if err != nil {
		t.Fatalf("query within the limit: %v", err)
	}
	if err := seq.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if store.InUse() != 0 {
		t.Fatalf("expected no connection held after close")
	}
}

func TestOpenQueryIdentifiersRestrictObservations(t *testing.T) {
	ctx := context.Background()
	store := memory.New(fixture.Sample())
	for _, tc := range []struct {
		dedup bool
		want  []int64
	}{
		{dedup: false, want: []int64{4, 5}},
		{dedup: true, want: []int64{4}},
	} {
		seq, err := newSource(t, store, Config{ChunkSize: 1, Dedup: tc.dedup}).OpenQuery(ctx, datastore.SeriesQuery{Identifiers: []string{"h-1"}}, datastore.SeriesFilter{})
		if err != nil {
			t.Fatalf("OpenQuery: %v", err)
		}
		got, err := Collect(ctx, seq)
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
		if !sameIDs(got, tc.want) {
			t.Fatalf("dedup=%v: got %v, want %v", tc.dedup, observationIDs(got), tc.want)
		}
	}
	if store.InUse() != 0 {
		t.Fatalf("expected all connections released")
	}
}

func TestOpenQueryDedupSpansSeries(t *testing.T) {
	ctx := context.Background()
	store := memory.New(fixture.Sample())
	store.Update(func(ds *fixture.Dataset) {
		ds.Observations[2].Identifier = "t-1" // series 2 repeats an identifier of series 1
	})
	seq, err := newSource(t, store, Config{ChunkSize: 5, Dedup: true}).OpenQuery(ctx, datastore.SeriesQuery{Phenomena: []string{"air_temperature"}}, datastore.SeriesFilter{})
	if err != nil {
		t.Fatalf("OpenQuery: %v", err)
	}
	got, err := Collect(ctx, seq)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !sameIDs(got, []int64{1, 2}) {
		t.Fatalf("expected the repeat in series 2 dropped, got %v", observationIDs(got))
	}
}

func TestOpenQueryCloseMidwayReleases(t *testing.T) {
	ctx := context.Background()
	store := memory.New(fixture.Sample())
	seq, err := newSource(t, store, Config{ChunkSize: 1}).OpenQuery(ctx, datastore.SeriesQuery{}, datastore.SeriesFilter{})
	if err != nil {
		t.Fatalf("OpenQuery: %v", err)
	}
	chunk, hasMore, err := seq.Next(ctx)
	if err != nil || !hasMore || len(chunk) != 1 {
		t.Fatalf("unexpected first read %d %v %v", len(chunk), hasMore, err)
	}
	if store.InUse() != 1 {
		t.Fatalf("expected exactly one connection while reading, got %d", store.InUse())
	}
	if err := seq.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := seq.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if store.InUse() != 0 {
		t.Fatalf("expected connection released on close")
	}
	if _, _, err := seq.Next(ctx); !errors.Is(err, errs.ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestOpenQueryWithoutMatchesIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.New(fixture.Sample())
	seq, err := newSource(t, store, Config{ChunkSize: 3}).OpenQuery(ctx, datastore.SeriesQuery{Offerings: []string{"O9"}}, datastore.SeriesFilter{})
	if err != nil {
		t.Fatalf("OpenQuery: %v", err)
	}
	chunk, hasMore, err := seq.Next(ctx)
	if err != nil || hasMore || len(chunk) != 0 {
		t.Fatalf("expected an empty final read, got %d %v %v", len(chunk), hasMore, err)
	}
	if store.Acquired() != 1 || store.InUse() != 0 {
		t.Fatalf("expected only the resolve connection, acquired=%d", store.Acquired())
	}
}

func TestOpenQueryFailures(t *testing.T) {
	ctx := context.Background()

	store := memory.New(fixture.Sample())
	store.SetFaults(memory.Faults{Resolve: func(datastore.SeriesQuery) error { return fmt.Errorf("lock timeout") }})
	var dsErr *errs.DatastoreError
	if _, err := newSource(t, store, Config{ChunkSize: 1}).OpenQuery(ctx, datastore.SeriesQuery{}, datastore.SeriesFilter{}); !errors.As(err, &dsErr) {
		t.Fatalf("expected DatastoreError, got %v", err)
	}
	if store.InUse() != 0 {
		t.Fatalf("failed resolve leaked a connection")
	}

	store = memory.New(fixture.Sample())
	store.SetFaults(memory.Faults{Series: func(series domain.SeriesID, _ datastore.Cursor) error {
		if series == 2 {
			return fmt.Errorf("disk error")
		}
		return nil
	}})
	seq, err := newSource(t, store, Config{ChunkSize: 10}).OpenQuery(ctx, datastore.SeriesQuery{Phenomena: []string{"air_temperature"}}, datastore.SeriesFilter{})
	if err != nil {
		t.Fatalf("OpenQuery: %v", err)
	}
	got, err := Collect(ctx, seq)
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected DatastoreError from series 2, got %v", err)
	}
	if !sameIDs(got, []int64{1, 2}) {
		t.Fatalf("expected series 1 delivered before the failure, got %v", observationIDs(got))
	}
	if store.InUse() != 0 {
		t.Fatalf("failed read leaked a connection")
	}

	var argErr *errs.InvalidArgumentError
	bad := datastore.SeriesFilter{Begin: time.UnixMilli(5000), End: time.UnixMilli(1000)}
	if _, err := newSource(t, store, Config{ChunkSize: 1}).OpenQuery(ctx, datastore.SeriesQuery{}, bad); !errors.As(err, &argErr) {
		t.Fatalf("expected InvalidArgumentError for inverted window, got %v", err)
	}
}

func TestNewSourceRejectsNegativeMaxSeries(t *testing.T) {
	store := memory.New(fixture.Dataset{})
	var cfgErr *errs.ConfigurationError
	if _, err := NewSource(store, store, Config{ChunkSize: 1, MaxSeries: -1}); !errors.As(err, &cfgErr) || cfgErr.Field != "stream.maxSeries" {
		t.Fatalf("expected ConfigurationError on stream.maxSeries, got %v", err)
	}
}
