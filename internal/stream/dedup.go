package stream

import (
	"context"
	"io"

	"obscore/pkg/domain"
)

// Deduplicator drops observations whose identifier was already emitted.
// Observations without an identifier always pass. Memory grows with the
// number of distinct identifiers, never with the number of observations.
type Deduplicator struct {
	upstream Sequence
	seen     map[string]struct{}
	dropped  int
}

var _ SequenceCloser = (*Deduplicator)(nil)

// NewDeduplicator wraps upstream.
func NewDeduplicator(upstream Sequence) *Deduplicator {
	return &Deduplicator{upstream: upstream, seen: make(map[string]struct{})}
}

// Dedup wraps seq in a Deduplicator when enabled and returns seq unchanged
// otherwise.
func Dedup(seq Sequence, enabled bool) Sequence {
	if !enabled {
		return seq
	}
	return NewDeduplicator(seq)
}

// Next filters the upstream chunk. A chunk may come back empty while hasMore
// is still true.
func (d *Deduplicator) Next(ctx context.Context) ([]domain.Observation, bool, error) {
	chunk, hasMore, err := d.upstream.Next(ctx)
	if err != nil {
		return nil, false, err
	}
	out := make([]domain.Observation, 0, len(chunk))
	for _, obs := range chunk {
		if obs.Identifier != "" {
			if _, dup := d.seen[obs.Identifier]; dup {
				d.dropped++
				continue
			}
			d.seen[obs.Identifier] = struct{}{}
		}
		out = append(out, obs)
	}
	return out, hasMore, nil
}

// Dropped reports how many observations were filtered out.
func (d *Deduplicator) Dropped() int { return d.dropped }

// Close closes the upstream sequence when it holds resources.
func (d *Deduplicator) Close() error {
	if c, ok := d.upstream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
