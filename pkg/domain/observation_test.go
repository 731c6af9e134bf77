package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSeriesIDString(t *testing.T) {
	if got := SeriesID(42).String(); got != "series-42" {
		t.Fatalf("unexpected series id rendering %q", got)
	}
}

func TestObservationJSONOmitsEmptyOptionalFields(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b, err := json.Marshal(Observation{ID: 1, SeriesID: 3, PhenomenonTimeStart: at, PhenomenonTimeEnd: at, ResultTime: at, Value: 1.5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "identifier") || strings.Contains(s, "unit") {
		t.Fatalf("expected optional fields omitted, got %s", s)
	}
	if !strings.Contains(s, `"series_id":3`) || !strings.Contains(s, `"value":1.5`) {
		t.Fatalf("unexpected encoding %s", s)
	}
}
