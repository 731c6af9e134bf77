package core

import "obscore/internal/errs"

// Error taxonomy re-exported for callers of the feeder.
type (
	ConfigurationError   = errs.ConfigurationError
	InvalidArgumentError = errs.InvalidArgumentError
	ConnectionError      = errs.ConnectionError
	DatastoreError       = errs.DatastoreError
	ConversionError      = errs.ConversionError
	ErrorRecord          = errs.Record
	AggregateError       = errs.AggregateError
)

// ErrSnapshotNotFound is returned by WarmStart when nothing was persisted yet.
var ErrSnapshotNotFound = errs.ErrSnapshotNotFound
