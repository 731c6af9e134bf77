// Package errs holds the error taxonomy shared by the cache feeder, the
// streaming layer and the datastore adapters.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStreamClosed is returned by Next once a stream handle was closed by its owner.
	ErrStreamClosed = errors.New("stream handle closed")
	// ErrSnapshotNotFound is returned when no persisted cache snapshot exists.
	ErrSnapshotNotFound = errors.New("cache snapshot not found")
)

// ConfigurationError rejects a setting before any work is dispatched.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// InvalidArgumentError reports a missing or malformed call argument.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Argument, e.Reason)
}

// ConnectionError reports a failure to acquire or release a datastore connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DatastoreError reports a failed query inside a task or a stream pull.
type DatastoreError struct {
	Op  string
	Err error
}

func (e *DatastoreError) Error() string {
	return fmt.Sprintf("datastore %s: %v", e.Op, e.Err)
}

func (e *DatastoreError) Unwrap() error { return e.Err }

// ConversionError reports a raw row value that could not be mapped to a domain value.
type ConversionError struct {
	Field string
	Value any
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("convert %s (%v)", e.Field, e.Value)
	}
	return fmt.Sprintf("convert %s (%v): %v", e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// TooManySeriesError rejects a series query that matched more series than
// the configured limit allows.
type TooManySeriesError struct {
	Limit int
	Found int
}

func (e *TooManySeriesError) Error() string {
	return fmt.Sprintf("query matched %d series, limit is %d", e.Found, e.Limit)
}

// Record pairs a failure with the label of the work unit that produced it.
type Record struct {
	Context string
	Cause   error
}

func (r Record) Error() string {
	return fmt.Sprintf("%s: %v", r.Context, r.Cause)
}

func (r Record) Unwrap() error { return r.Cause }

// AggregateError wraps the failures of independent tasks, one record per failure.
type AggregateError struct {
	Records []Record
}

func (e *AggregateError) Error() string {
	if len(e.Records) == 1 {
		return "1 task failed: " + e.Records[0].Error()
	}
	parts := make([]string, 0, len(e.Records))
	for _, rec := range e.Records {
		parts = append(parts, rec.Error())
	}
	return fmt.Sprintf("%d tasks failed: %s", len(e.Records), strings.Join(parts, "; "))
}

// Unwrap exposes every record so errors.Is and errors.As reach each cause.
func (e *AggregateError) Unwrap() []error {
	out := make([]error, 0, len(e.Records))
	for _, rec := range e.Records {
		out = append(out, rec)
	}
	return out
}

// Contexts lists the record context labels in order.
func (e *AggregateError) Contexts() []string {
	out := make([]string, 0, len(e.Records))
	for _, rec := range e.Records {
		out = append(out, rec.Context)
	}
	return out
}
