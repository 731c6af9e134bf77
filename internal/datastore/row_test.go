package datastore

import (
	"errors"
	"testing"
	"time"

	"obscore/internal/errs"
)

func TestRowConversions(t *testing.T) {
	row := Row{
		"s":     []byte("text"),
		"n":     "42",
		"f":     int64(3),
		"nullf": nil,
		"ms":    int64(1700000000000),
		"bad":   "x1",
	}
	if s, err := row.String("s"); err != nil || s != "text" {
		t.Fatalf("String: %q %v", s, err)
	}
	if n, err := row.Int64("n"); err != nil || n != 42 {
		t.Fatalf("Int64: %d %v", n, err)
	}
	if f, ok, err := row.OptFloat("f"); err != nil || !ok || f != 3 {
		t.Fatalf("OptFloat: %v %v %v", f, ok, err)
	}
	if _, ok, err := row.OptFloat("nullf"); err != nil || ok {
		t.Fatalf("expected null float, got ok=%v err=%v", ok, err)
	}
	ts, err := row.Time("ms")
	if err != nil || !ts.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("Time: %v %v", ts, err)
	}
	var conv *errs.ConversionError
	if _, _, err := row.OptFloat("bad"); !errors.As(err, &conv) || conv.Field != "bad" {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if _, err := row.String("missing"); !errors.As(err, &conv) {
		t.Fatalf("expected conversion error for missing required column, got %v", err)
	}
}

func TestRowObservation(t *testing.T) {
	row := Row{
		ColID:                  int64(7),
		ColIdentifier:          "obs-7",
		ColSeriesID:            int64(3),
		ColPhenomenonTimeStart: int64(1000),
		ColPhenomenonTimeEnd:   nil,
		ColResultTime:          int64(2000),
		ColValue:               12.5,
		ColUnit:                "degC",
	}
	obs, err := row.Observation()
	if err != nil {
		t.Fatalf("Observation: %v", err)
	}
	if obs.ID != 7 || obs.Identifier != "obs-7" || obs.SeriesID != 3 || obs.Value != 12.5 || obs.Unit != "degC" {
		t.Fatalf("unexpected observation %+v", obs)
	}
	if !obs.PhenomenonTimeEnd.Equal(obs.PhenomenonTimeStart) {
		t.Fatalf("expected instant phenomenon time, got %v..%v", obs.PhenomenonTimeStart, obs.PhenomenonTimeEnd)
	}

	row[ColValue] = nil
	var conv *errs.ConversionError
	if _, err := row.Observation(); !errors.As(err, &conv) || conv.Field != ColValue {
		t.Fatalf("expected value conversion error, got %v", err)
	}
}
