package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestErrorSinkCollectsConcurrently(t *testing.T) {
	sink := NewErrorSink()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Add(fmt.Sprintf("task-%d", i), fmt.Errorf("failure %d", i))
			sink.Add("ignored", nil)
		}()
	}
	wg.Wait()
	if sink.Len() != 50 {
		t.Fatalf("expected 50 records, got %d", sink.Len())
	}
	records := sink.Drain()
	if len(records) != 50 || sink.Len() != 0 {
		t.Fatalf("expected drain to empty the sink, got %d then %d", len(records), sink.Len())
	}
}

func TestAggregateExposesEveryCause(t *testing.T) {
	if err := aggregate(nil); err != nil {
		t.Fatalf("expected nil for no records, got %v", err)
	}
	sentinel := errors.New("sentinel")
	err := aggregate([]ErrorRecord{
		{Context: "procedures", Cause: &DatastoreError{Op: "query procedures", Err: sentinel}},
		{Context: "O2", Cause: &ConversionError{Field: "srid", Value: "x"}},
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel reachable through aggregate")
	}
	var conv *ConversionError
	if !errors.As(err, &conv) || conv.Field != "srid" {
		t.Fatalf("expected conversion error reachable, got %v", err)
	}
	want := "2 tasks failed: procedures: datastore query procedures: sentinel; O2: convert srid (x)"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestTaskContextLabels(t *testing.T) {
	full := UpdateTask{Kind: FullRebuild, Facet: "features"}
	scoped := UpdateTask{Kind: OfferingScopedRebuild, OfferingID: "O7"}
	if full.Context() != "features" || scoped.Context() != "O7" {
		t.Fatalf("unexpected contexts %q %q", full.Context(), scoped.Context())
	}
	if TaskKind(9).String() != "task_kind(9)" || FullRebuild.String() != "full_rebuild" {
		t.Fatalf("unexpected kind strings")
	}
}
