package core

import (
	"context"
	"log/slog"
	"time"

	"obscore/internal/cache"
	"obscore/internal/events"
)

// Logger is the structured logging surface used by the feeder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewSlogLogger adapts a *slog.Logger; nil yields slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return l
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's error.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type feederOptions struct {
	clock       Clock
	logger      Logger
	metrics     MetricsRecorder
	tracer      Tracer
	snapshots   cache.SnapshotStore
	snapshotKey string
	publisher   events.Publisher
}

func defaultFeederOptions() feederOptions {
	return feederOptions{
		clock:       ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:      noopLogger{},
		metrics:     noopMetrics{},
		tracer:      noopTracer{},
		snapshotKey: cache.DefaultSnapshotKey,
		publisher:   events.Noop{},
	}
}

// Option customises a CacheFeeder.
type Option func(*feederOptions)

// WithClock overrides the clock used for durations and snapshot stamps.
func WithClock(clock Clock) Option {
	return func(o *feederOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger routes feeder logs to logger.
func WithLogger(logger Logger) Option {
	return func(o *feederOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder reports rebuild outcomes to recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *feederOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer wraps rebuilds in spans from tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *feederOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithSnapshotStore persists the cache after every successful full rebuild
// and enables WarmStart. An empty key keeps cache.DefaultSnapshotKey.
func WithSnapshotStore(store cache.SnapshotStore, key string) Option {
	return func(o *feederOptions) {
		o.snapshots = store
		if key != "" {
			o.snapshotKey = key
		}
	}
}

// WithEventPublisher announces completed rebuilds through publisher.
func WithEventPublisher(publisher events.Publisher) Option {
	return func(o *feederOptions) {
		if publisher != nil {
			o.publisher = publisher
		}
	}
}
