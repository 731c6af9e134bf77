// Package stream reads one observation series as a lazy, forward-only
// sequence of chunks. A Handle owns a single datastore connection from Open
// until the series is exhausted, a read fails, or Close is called.
package stream

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"obscore/internal/datastore"
	"obscore/internal/errs"
	"obscore/pkg/domain"
)

// DefaultChunkSize is the number of observations returned per Next call when
// none is configured.
const DefaultChunkSize = 1000

// Config sizes a Source.
type Config struct {
	ChunkSize int
	// Dedup drops repeated observation identifiers in OpenSeries and OpenQuery.
	Dedup bool
	// MaxSeries caps how many series OpenQuery may resolve; 0 disables the cap.
	MaxSeries int
}

// Option customises a Source.
type Option func(*Source)

// WithLogger routes handle lifecycle logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Source opens series streams against one datastore.
type Source struct {
	provider datastore.ConnectionProvider
	store    datastore.Datastore
	cfg      Config
	logger   *slog.Logger
}

// NewSource validates cfg and returns a Source.
func NewSource(provider datastore.ConnectionProvider, store datastore.Datastore, cfg Config, opts ...Option) (*Source, error) {
	if cfg.ChunkSize <= 0 {
		return nil, &errs.ConfigurationError{Field: "stream.chunkSize", Reason: fmt.Sprintf("must be greater than zero, got %d", cfg.ChunkSize)}
	}
	if cfg.MaxSeries < 0 {
		return nil, &errs.ConfigurationError{Field: "stream.maxSeries", Reason: fmt.Sprintf("must not be negative, got %d", cfg.MaxSeries)}
	}
	if provider == nil || store == nil {
		return nil, &errs.InvalidArgumentError{Argument: "datastore", Reason: "provider and store are required"}
	}
	s := &Source{provider: provider, store: store, cfg: cfg, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ChunkSize reports the configured chunk size.
func (s *Source) ChunkSize() int { return s.cfg.ChunkSize }

// Open acquires a connection and returns a handle positioned before the first
// observation of series.
func (s *Source) Open(ctx context.Context, series domain.SeriesID, filter datastore.SeriesFilter) (*Handle, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	conn, err := s.provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		id:     uuid.NewString(),
		source: s,
		conn:   conn,
		series: series,
		filter: filter,
	}
	s.logger.Debug("series stream opened", "handle", h.id, "series", int64(series), "chunk_size", s.cfg.ChunkSize)
	return h, nil
}

func validateFilter(filter datastore.SeriesFilter) error {
	if !filter.Begin.IsZero() && !filter.End.IsZero() && !filter.Begin.Before(filter.End) {
		return &errs.InvalidArgumentError{Argument: "filter", Reason: "begin must be before end"}
	}
	return nil
}

// OpenSeries opens series and applies the configured deduplication.
func (s *Source) OpenSeries(ctx context.Context, series domain.SeriesID, filter datastore.SeriesFilter) (SequenceCloser, error) {
	h, err := s.Open(ctx, series, filter)
	if err != nil {
		return nil, err
	}
	if !s.cfg.Dedup {
		return h, nil
	}
	return NewDeduplicator(h), nil
}

// Handle is an open series stream. A Handle is not rewindable; reading the
// series again requires a new Open.
type Handle struct {
	id     string
	source *Source
	series domain.SeriesID
	filter datastore.SeriesFilter

	mu         sync.Mutex
	conn       datastore.Conn // nil once released
	cursor     datastore.Cursor
	done       bool
	closed     bool
	err        error
	releaseErr error
	delivered  int
}

var _ SequenceCloser = (*Handle)(nil)

// ID identifies the handle in logs.
func (h *Handle) ID() string { return h.id }

// Delivered reports how many observations were returned so far.
func (h *Handle) Delivered() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delivered
}

// Next returns the next chunk in store order. hasMore is false on the final
// chunk, after which the connection has already been released. A failed read
// releases the connection and is returned again by every later call.
func (h *Handle) Next(ctx context.Context) ([]domain.Observation, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.closed:
		return nil, false, errs.ErrStreamClosed
	case h.err != nil:
		return nil, false, h.err
	case h.done:
		return nil, false, nil
	}

	size := h.source.cfg.ChunkSize
	rows, err := h.source.store.QuerySeriesChunk(ctx, h.conn, h.series, h.cursor, size+1, h.filter)
	if err != nil {
		return nil, false, h.fail(err)
	}
	hasMore := len(rows) > size
	if hasMore {
		rows = rows[:size]
	}
	out := make([]domain.Observation, 0, len(rows))
	for _, r := range rows {
		obs, err := r.Observation()
		if err != nil {
			return nil, false, h.fail(err)
		}
		out = append(out, obs)
	}
	if n := len(out); n > 0 {
		h.cursor = datastore.Cursor(out[n-1].ID)
	}
	h.delivered += len(out)
	if !hasMore {
		h.done = true
		h.release()
		h.source.logger.Debug("series stream exhausted", "handle", h.id, "delivered", h.delivered)
	}
	return out, hasMore, nil
}

func (h *Handle) fail(err error) error {
	h.err = err
	h.release()
	h.source.logger.Warn("series stream failed", "handle", h.id, "series", int64(h.series), "delivered", h.delivered, "error", err)
	return err
}

// release returns the connection at most once. Callers hold h.mu.
func (h *Handle) release() {
	if h.conn == nil {
		return
	}
	if err := h.source.provider.Release(h.conn); err != nil {
		h.releaseErr = err
	}
	h.conn = nil
}

// Close releases the connection if it is still held. Only the first call has
// an effect; it reports a release failure from any earlier exit path.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.release()
	return h.releaseErr
}

// All iterates the remaining observations of h and closes it when iteration
// ends for any reason.
func (h *Handle) All(ctx context.Context) iter.Seq2[domain.Observation, error] {
	return Iterate(ctx, h)
}
