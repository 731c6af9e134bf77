package stream

import (
	"context"
	"slices"
	"sync"

	"obscore/internal/datastore"
	"obscore/internal/errs"
	"obscore/pkg/domain"
)

// ResolveSeries lists the series matching q, ordered by id. The connection is
// returned before the result is checked against MaxSeries, so a rejected
// query holds nothing.
func (s *Source) ResolveSeries(ctx context.Context, q datastore.SeriesQuery) ([]domain.Series, error) {
	conn, err := s.provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.QuerySeries(ctx, conn, q)
	if rerr := s.provider.Release(conn); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxSeries > 0 && len(rows) > s.cfg.MaxSeries {
		s.logger.Warn("series query rejected", "matched", len(rows), "limit", s.cfg.MaxSeries)
		return nil, &errs.TooManySeriesError{Limit: s.cfg.MaxSeries, Found: len(rows)}
	}
	out := make([]domain.Series, 0, len(rows))
	for _, r := range rows {
		sr, err := r.Series()
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, nil
}

// OpenQuery resolves q and streams the matched series one after another in
// series id order. Identifiers in q also restrict the streamed observations.
// At most one connection is held at a time; each series is opened when the
// previous one is exhausted. Deduplication, when configured, spans all
// matched series.
func (s *Source) OpenQuery(ctx context.Context, q datastore.SeriesQuery, filter datastore.SeriesFilter) (SequenceCloser, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if len(q.Identifiers) > 0 && len(filter.Identifiers) == 0 {
		filter.Identifiers = slices.Clone(q.Identifiers)
	}
	series, err := s.ResolveSeries(ctx, q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("series query resolved", "series", len(series))
	qs := &QueryStream{source: s, series: series, filter: filter}
	if !s.cfg.Dedup {
		return qs, nil
	}
	return NewDeduplicator(qs), nil
}

// QueryStream chains the handles of several series.
type QueryStream struct {
	source *Source
	series []domain.Series
	filter datastore.SeriesFilter

	mu         sync.Mutex
	next       int
	cur        *Handle
	err        error
	closed     bool
	releaseErr error
}

var _ SequenceCloser = (*QueryStream)(nil)

// Series lists the resolved series.
func (q *QueryStream) Series() []domain.Series { return slices.Clone(q.series) }

// Next returns the next chunk of the current series, moving on to the next
// series when it runs dry. hasMore stays true while any series is unread.
// Failures are sticky, like Handle.Next.
func (q *QueryStream) Next(ctx context.Context) ([]domain.Observation, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.closed:
		return nil, false, errs.ErrStreamClosed
	case q.err != nil:
		return nil, false, q.err
	}
	for {
		if q.cur == nil {
			if q.next >= len(q.series) {
				return nil, false, nil
			}
			h, err := q.source.Open(ctx, q.series[q.next].ID, q.filter)
			if err != nil {
				q.err = err
				return nil, false, err
			}
			q.next++
			q.cur = h
		}
		chunk, hasMore, err := q.cur.Next(ctx)
		if err != nil {
			q.err = err
			q.closeCurrent()
			return nil, false, err
		}
		if !hasMore {
			q.closeCurrent()
		}
		more := hasMore || q.next < len(q.series)
		if len(chunk) == 0 && q.cur == nil && more {
			continue
		}
		return chunk, more, nil
	}
}

// closeCurrent closes the open handle, if any. Callers hold q.mu.
func (q *QueryStream) closeCurrent() {
	if q.cur == nil {
		return
	}
	if err := q.cur.Close(); err != nil && q.releaseErr == nil {
		q.releaseErr = err
	}
	q.cur = nil
}

// Close releases the connection of the series being read. Only the first call
// has an effect; it reports the first release failure seen by the stream.
func (q *QueryStream) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.closeCurrent()
	return q.releaseErr
}
