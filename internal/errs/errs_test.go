package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestAggregateErrorUnwrapsEveryRecord(t *testing.T) {
	cause := errors.New("boom")
	agg := &AggregateError{Records: []Record{
		{Context: "O1", Cause: &DatastoreError{Op: "query", Err: cause}},
		{Context: "O2", Cause: &ConversionError{Field: "min_x", Value: "x"}},
	}}
	if !errors.Is(agg, cause) {
		t.Fatalf("expected errors.Is to reach wrapped cause")
	}
	var conv *ConversionError
	if !errors.As(agg, &conv) || conv.Field != "min_x" {
		t.Fatalf("expected errors.As to find conversion error, got %v", conv)
	}
	if got := agg.Contexts(); len(got) != 2 || got[0] != "O1" || got[1] != "O2" {
		t.Fatalf("unexpected contexts %v", got)
	}
	if !strings.Contains(agg.Error(), "2 tasks failed") {
		t.Fatalf("unexpected message %q", agg.Error())
	}
}

func TestSingleRecordMessage(t *testing.T) {
	agg := &AggregateError{Records: []Record{{Context: "procedures", Cause: errors.New("down")}}}
	if agg.Error() != "1 task failed: procedures: down" {
		t.Fatalf("unexpected message %q", agg.Error())
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&ConfigurationError{Field: "threadCount", Reason: "must be > 0"}, "invalid configuration threadCount: must be > 0"},
		{&InvalidArgumentError{Argument: "cache", Reason: "nil"}, "invalid argument cache: nil"},
		{&ConnectionError{Op: "acquire", Err: errors.New("refused")}, "connection acquire: refused"},
		{&DatastoreError{Op: "query offerings", Err: errors.New("timeout")}, "datastore query offerings: timeout"},
		{&ConversionError{Field: "value", Value: "abc"}, "convert value (abc)"},
		{&TooManySeriesError{Limit: 2, Found: 5}, "query matched 5 series, limit is 2"},
	}
	for _, tc := range cases {
		if tc.err.Error() != tc.want {
			t.Fatalf("got %q want %q", tc.err.Error(), tc.want)
		}
	}
}
