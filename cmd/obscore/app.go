package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"obscore/internal/cache"
	"obscore/internal/config"
	"obscore/internal/core"
	"obscore/internal/datastore"
	"obscore/internal/events"
	fssnap "obscore/internal/infra/snapshot/fs"
	memsnap "obscore/internal/infra/snapshot/memory"
	s3snap "obscore/internal/infra/snapshot/s3"
)

// app holds everything a command needs; close releases it.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	backend   datastore.Backend
	snapshots cache.SnapshotStore
	publisher events.Publisher
	closers   []func() error
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func loadApp(ctx context.Context, flags *globalFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		if err := config.ValidateLogLevel("--log-level", flags.logLevel); err != nil {
			return nil, err
		}
		cfg.Log.Level = flags.logLevel
	}
	a := &app{cfg: cfg, logger: newLogger(logOut, cfg.Log), publisher: events.Noop{}}

	backend, err := core.OpenBackend(ctx, cfg.Storage())
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	a.backend = backend
	a.closers = append(a.closers, backend.Close)

	if a.snapshots, err = openSnapshots(ctx, cfg.Snapshot); err != nil {
		_ = a.close()
		return nil, err
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			_ = a.close()
			return nil, err
		}
		a.publisher = pub
		a.closers = append(a.closers, func() error { pub.Close(); return nil })
	}
	a.logger.Debug("obscore configured",
		"datastore", cfg.Datastore.Driver,
		"threads", cfg.Cache.ThreadCount,
		"chunk_size", cfg.Stream.ChunkSize,
		"max_series", cfg.Stream.MaxSeries,
		"snapshot", cfg.Snapshot.Driver)
	return a, nil
}

func openSnapshots(ctx context.Context, cfg config.SnapshotConfig) (cache.SnapshotStore, error) {
	switch cfg.Driver {
	case config.SnapshotNone, "":
		return nil, nil
	case config.SnapshotMemory:
		return memsnap.New(), nil
	case config.SnapshotFS:
		return fssnap.New(cfg.FSRoot)
	case config.SnapshotS3:
		return s3snap.New(ctx, s3snap.Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown snapshot driver %q", cfg.Driver)
	}
}

func (a *app) close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
