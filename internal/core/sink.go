package core

import (
	"sync"

	"obscore/internal/errs"
)

// ErrorSink collects task failures. It is safe for concurrent use and is
// drained once after all tasks joined.
type ErrorSink struct {
	mu      sync.Mutex
	records []ErrorRecord
}

// NewErrorSink returns an empty sink.
func NewErrorSink() *ErrorSink { return &ErrorSink{} }

// Add appends a failure labelled with context. A nil cause is ignored.
func (s *ErrorSink) Add(context string, cause error) {
	if cause == nil {
		return
	}
	s.mu.Lock()
	s.records = append(s.records, ErrorRecord{Context: context, Cause: cause})
	s.mu.Unlock()
}

// Len reports the number of pending records.
func (s *ErrorSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Drain returns the records in insertion order and empties the sink.
func (s *ErrorSink) Drain() []ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.records
	s.records = nil
	return out
}

// aggregate turns drained records into the feeder's result.
func aggregate(records []ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	return &errs.AggregateError{Records: records}
}
