package core

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"obscore/internal/cache"
)

func TestDefaultOptionsAreNoops(t *testing.T) {
	o := defaultFeederOptions()
	o.logger.Debug("debug", "k", "v")
	o.logger.Info("info")
	o.logger.Warn("warn")
	o.logger.Error("error")
	o.metrics.Observe(context.Background(), "op", true, 0)
	_, span := o.tracer.Start(context.Background(), "op")
	span.End(nil)
	if o.snapshotKey != cache.DefaultSnapshotKey || o.snapshots != nil {
		t.Fatalf("unexpected snapshot defaults %+v", o)
	}
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	o := defaultFeederOptions()
	for _, opt := range []Option{WithClock(nil), WithLogger(nil), WithMetricsRecorder(nil), WithTracer(nil), WithEventPublisher(nil)} {
		opt(&o)
	}
	if o.clock == nil || o.logger == nil || o.metrics == nil || o.tracer == nil || o.publisher == nil {
		t.Fatalf("nil option replaced a default")
	}
}

func TestNewSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	logger.Info("cache load time", "tasks", 5)
	if !strings.Contains(buf.String(), "cache load time") || !strings.Contains(buf.String(), "tasks=5") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
	if NewSlogLogger(nil) == nil {
		t.Fatalf("expected default logger")
	}
}
