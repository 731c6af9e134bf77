package stream

import (
	"context"
	"io"
	"iter"

	"obscore/pkg/domain"
)

// Sequence yields observations chunk by chunk.
type Sequence interface {
	Next(ctx context.Context) (chunk []domain.Observation, hasMore bool, err error)
}

// SequenceCloser is a Sequence holding resources until Close.
type SequenceCloser interface {
	Sequence
	io.Closer
}

// Iterate flattens seq into single observations. An error is yielded once as
// the final element. When seq is an io.Closer it is closed on every exit
// path, including a consumer that stops early.
func Iterate(ctx context.Context, seq Sequence) iter.Seq2[domain.Observation, error] {
	return func(yield func(domain.Observation, error) bool) {
		if c, ok := seq.(io.Closer); ok {
			defer c.Close()
		}
		for {
			chunk, hasMore, err := seq.Next(ctx)
			if err != nil {
				yield(domain.Observation{}, err)
				return
			}
			for _, obs := range chunk {
				if !yield(obs, nil) {
					return
				}
			}
			if !hasMore {
				return
			}
		}
	}
}

// Collect drains seq into a slice. Observations read before a failure are
// returned along with the error.
func Collect(ctx context.Context, seq Sequence) ([]domain.Observation, error) {
	var out []domain.Observation
	for obs, err := range Iterate(ctx, seq) {
		if err != nil {
			return out, err
		}
		out = append(out, obs)
	}
	return out, nil
}
