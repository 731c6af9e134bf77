// Package core populates the content cache from the observation store. The
// CacheFeeder partitions a rebuild into independent tasks, runs them on a
// bounded worker pool with one connection per task, and reports every task
// failure in a single aggregate error once all tasks have finished.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"obscore/internal/cache"
	"obscore/internal/datastore"
	"obscore/internal/events"
)

// DefaultThreadCount is the worker pool width used when none is configured.
const DefaultThreadCount = 5

const (
	opRebuildAll       = "rebuild_all"
	opRebuildOfferings = "rebuild_offerings"
	opPersistSnapshot  = "persist_snapshot"
	opWarmStart        = "warm_start"
)

// Config sizes the feeder.
type Config struct {
	// ThreadCount is the maximum number of tasks running at once.
	ThreadCount int
}

// CacheFeeder rebuilds a content cache from a datastore.
type CacheFeeder struct {
	provider datastore.ConnectionProvider
	store    datastore.Datastore
	cfg      Config
	opts     feederOptions
}

// NewCacheFeeder validates cfg and wires the collaborators.
func NewCacheFeeder(provider datastore.ConnectionProvider, store datastore.Datastore, cfg Config, opts ...Option) (*CacheFeeder, error) {
	if cfg.ThreadCount <= 0 {
		return nil, &ConfigurationError{Field: "cache.threadCount", Reason: fmt.Sprintf("must be greater than zero, got %d", cfg.ThreadCount)}
	}
	if provider == nil {
		return nil, &InvalidArgumentError{Argument: "provider", Reason: "required"}
	}
	if store == nil {
		return nil, &InvalidArgumentError{Argument: "store", Reason: "required"}
	}
	o := defaultFeederOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &CacheFeeder{provider: provider, store: store, cfg: cfg, opts: o}, nil
}

// ThreadCount reports the configured pool width.
func (f *CacheFeeder) ThreadCount() int { return f.cfg.ThreadCount }

// RebuildAll recomputes every facet of c. It returns nil when all tasks
// succeeded and an *AggregateError otherwise; facets whose task succeeded are
// updated either way.
func (f *CacheFeeder) RebuildAll(ctx context.Context, c *cache.Cache) error {
	if c == nil {
		return &InvalidArgumentError{Argument: "cache", Reason: "required"}
	}
	facets := cache.Facets()
	tasks := make([]UpdateTask, 0, len(facets))
	for _, facet := range facets {
		tasks = append(tasks, UpdateTask{Kind: FullRebuild, Facet: facet, Width: f.cfg.ThreadCount})
	}
	return f.run(ctx, opRebuildAll, c, tasks, nil)
}

// RebuildOfferings recomputes the entries of the named offerings only. Blank
// and repeated ids are ignored; an empty list is a no-op.
func (f *CacheFeeder) RebuildOfferings(ctx context.Context, c *cache.Cache, offeringIDs []string) error {
	if c == nil {
		return &InvalidArgumentError{Argument: "cache", Reason: "required"}
	}
	ids := normalizeIDs(offeringIDs)
	if len(ids) == 0 {
		f.opts.logger.Debug("offering rebuild skipped: no offerings requested")
		return nil
	}
	tasks := make([]UpdateTask, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, UpdateTask{Kind: OfferingScopedRebuild, OfferingID: id, Width: 1})
	}
	return f.run(ctx, opRebuildOfferings, c, tasks, ids)
}

// WarmStart restores c from the latest persisted snapshot and returns the
// time it was saved.
func (f *CacheFeeder) WarmStart(ctx context.Context, c *cache.Cache) (time.Time, error) {
	if c == nil {
		return time.Time{}, &InvalidArgumentError{Argument: "cache", Reason: "required"}
	}
	if f.opts.snapshots == nil {
		return time.Time{}, fmt.Errorf("no snapshot store configured: %w", ErrSnapshotNotFound)
	}
	start := f.opts.clock.Now()
	savedAt, err := cache.Load(ctx, f.opts.snapshots, f.opts.snapshotKey, c)
	f.opts.metrics.Observe(ctx, opWarmStart, err == nil, f.opts.clock.Now().Sub(start))
	if err != nil {
		return time.Time{}, fmt.Errorf("warm start: %w", err)
	}
	f.opts.logger.Info("cache restored from snapshot", "key", f.opts.snapshotKey, "saved_at", savedAt)
	return savedAt, nil
}

func (f *CacheFeeder) run(ctx context.Context, op string, c *cache.Cache, tasks []UpdateTask, offerings []string) (err error) {
	runID := uuid.NewString()
	log := f.opts.logger
	ctx, span := f.opts.tracer.Start(ctx, op)
	start := f.opts.clock.Now()
	defer func() {
		d := f.opts.clock.Now().Sub(start)
		f.opts.metrics.Observe(ctx, op, err == nil, d)
		span.End(err)
	}()

	log.Debug("cache rebuild started", "run_id", runID, "operation", op, "tasks", len(tasks), "threads", f.cfg.ThreadCount)
	if err := f.probe(ctx); err != nil {
		log.Error("cache rebuild aborted", "run_id", runID, "operation", op, "error", err)
		return err
	}

	sink := NewErrorSink()
	var g errgroup.Group
	g.SetLimit(f.cfg.ThreadCount)
	for _, task := range tasks {
		g.Go(func() error {
			f.runTask(ctx, task, c, sink)
			return nil
		})
	}
	_ = g.Wait()

	records := sink.Drain()
	err = aggregate(records)
	d := f.opts.clock.Now().Sub(start)
	if err != nil {
		log.Warn("cache rebuild finished with errors", "run_id", runID, "operation", op, "errors", len(records), "contexts", strings.Join(contextsOf(records), ","))
	}
	log.Info("cache load time", "run_id", runID, "operation", op, "duration", d, "tasks", len(tasks))

	if op == opRebuildAll && err == nil {
		f.persistSnapshot(ctx, c, runID)
	}
	f.publish(ctx, events.Event{
		Type:       events.TypeCacheRebuilt,
		RunID:      runID,
		Kind:       op,
		Offerings:  offerings,
		DurationMS: d.Milliseconds(),
		Errors:     len(records),
		At:         f.opts.clock.Now(),
	})
	return err
}

// probe checks that a connection can be obtained before any task is dispatched.
func (f *CacheFeeder) probe(ctx context.Context) error {
	conn, err := f.provider.Acquire(ctx)
	if err != nil {
		return asConnectionError("probe acquire", err)
	}
	pingErr := conn.Ping(ctx)
	if err := f.provider.Release(conn); err != nil {
		return asConnectionError("probe release", err)
	}
	if pingErr != nil {
		return asConnectionError("probe ping", pingErr)
	}
	return nil
}

func asConnectionError(op string, err error) error {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}

// runTask owns one connection for the duration of task. Panics are recovered
// into the sink after the connection has been released.
func (f *CacheFeeder) runTask(ctx context.Context, task UpdateTask, c *cache.Cache, sink *ErrorSink) {
	label := task.Context()
	defer func() {
		if r := recover(); r != nil {
			f.opts.logger.Error("cache task panicked", "task", label, "kind", task.Kind.String(), "panic", r)
			sink.Add(label, fmt.Errorf("task panicked: %v", r))
		}
	}()
	conn, err := f.provider.Acquire(ctx)
	if err != nil {
		sink.Add(label, err)
		return
	}
	defer func() {
		if err := f.provider.Release(conn); err != nil {
			sink.Add(label, err)
		}
	}()
	task.execute(ctx, f.store, conn, c, sink)
}

func (f *CacheFeeder) persistSnapshot(ctx context.Context, c *cache.Cache, runID string) {
	if f.opts.snapshots == nil {
		return
	}
	start := f.opts.clock.Now()
	err := cache.Persist(ctx, f.opts.snapshots, f.opts.snapshotKey, c, start)
	f.opts.metrics.Observe(ctx, opPersistSnapshot, err == nil, f.opts.clock.Now().Sub(start))
	if err != nil {
		f.opts.logger.Error("cache snapshot not persisted", "run_id", runID, "key", f.opts.snapshotKey, "error", err)
		return
	}
	f.opts.logger.Debug("cache snapshot persisted", "run_id", runID, "key", f.opts.snapshotKey)
}

func (f *CacheFeeder) publish(ctx context.Context, ev events.Event) {
	if err := f.opts.publisher.Publish(ctx, ev); err != nil {
		f.opts.logger.Warn("rebuild event not published", "run_id", ev.RunID, "error", err)
	}
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func contextsOf(records []ErrorRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Context)
	}
	return out
}
