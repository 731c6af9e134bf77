package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"obscore/internal/core"
	"obscore/internal/errs"
	"obscore/pkg/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedRebuildAndStream(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OBSCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("OBSCORE_SQLITE_PATH", filepath.Join(dir, "obs.db"))
	t.Setenv("OBSCORE_SNAPSHOT_DRIVER", "fs")
	t.Setenv("OBSCORE_SNAPSHOT_FS_ROOT", filepath.Join(dir, "snapshots"))
	t.Setenv("OBSCORE_LOG_LEVEL", "error")

	out, err := execute(t, "seed", "--sample")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out, "seeded 2 offerings, 3 series, 6 observations") {
		t.Fatalf("unexpected seed output %q", out)
	}

	metrics := filepath.Join(dir, "metrics.prom")
	timings := filepath.Join(dir, "timings.json")
	trace := filepath.Join(dir, "trace.jsonl")
	out, err = execute(t, "rebuild", "--metrics-file", metrics, "--metrics-json", timings, "--trace-file", trace)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !strings.Contains(out, "offerings:  2") || !strings.Contains(out, "phenomena:  3") {
		t.Fatalf("unexpected rebuild summary %q", out)
	}
	prom, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), `obscore_operation_total{operation="rebuild_all",status="success"} 1`) {
		t.Fatalf("unexpected metrics file:\n%s", prom)
	}
	raw, err := os.ReadFile(trace)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	var span core.JSONTraceEntry
	if err := json.Unmarshal(bytes.TrimSpace(raw), &span); err != nil || span.Operation != "rebuild_all" || span.Status != "success" {
		t.Fatalf("unexpected trace %q: %v", raw, err)
	}
	raw, err = os.ReadFile(timings)
	if err != nil {
		t.Fatalf("read timings: %v", err)
	}
	var snap core.ExpvarMetricsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil || snap.Results["rebuild_all"]["success"] != 1 {
		t.Fatalf("unexpected timings %s: %v", raw, err)
	}

	if _, err := execute(t, "rebuild", "--warm-start", "--offering", "O1"); err != nil {
		t.Fatalf("scoped rebuild: %v", err)
	}

	out, err = execute(t, "series", "3", "--dedup", "--chunk-size", "1")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 deduplicated observations, got %q", out)
	}
	var obs domain.Observation
	if err := json.Unmarshal([]byte(lines[1]), &obs); err != nil || obs.Identifier != "h-2" {
		t.Fatalf("unexpected second line %q: %v", lines[1], err)
	}

	out, err = execute(t, "series", "--procedure", "sensor-b", "--chunk-size", "2")
	if err != nil {
		t.Fatalf("series query: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 4 {
		t.Fatalf("expected 4 observations across series 2 and 3, got %q", out)
	}

	_, err = execute(t, "series", "--phenomenon", "air_temperature", "--max-series", "1")
	var tooMany *errs.TooManySeriesError
	if !errors.As(err, &tooMany) || tooMany.Found != 2 {
		t.Fatalf("expected TooManySeriesError, got %v", err)
	}
}

func TestSeedRequiresExactlyOneSource(t *testing.T) {
	if _, err := execute(t, "seed"); err == nil {
		t.Fatalf("expected error without --file or --sample")
	}
}

func TestSeriesRejectsBadArguments(t *testing.T) {
	if _, err := execute(t, "series", "abc"); err == nil {
		t.Fatalf("expected invalid series id error")
	}
	if _, err := execute(t, "series", "1", "--begin", "yesterday"); err == nil {
		t.Fatalf("expected invalid begin error")
	}
	if _, err := execute(t, "series"); err == nil {
		t.Fatalf("expected error without series id or query flags")
	}
	if _, err := execute(t, "series", "1", "--offering", "O1"); err == nil {
		t.Fatalf("expected error combining series id and query flags")
	}
}

func TestSeriesRejectsNegativeChunkSize(t *testing.T) {
	t.Setenv("OBSCORE_STORAGE_DRIVER", "memory")
	_, err := execute(t, "series", "1", "--chunk-size=-1")
	var cfgErr *errs.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "stream.chunkSize" {
		t.Fatalf("expected ConfigurationError on stream.chunkSize, got %v", err)
	}
}

func TestLogLevelFlagIsValidated(t *testing.T) {
	t.Setenv("OBSCORE_STORAGE_DRIVER", "memory")
	_, err := execute(t, "rebuild", "--log-level", "verbose")
	var cfgErr *errs.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "--log-level" {
		t.Fatalf("expected ConfigurationError on --log-level, got %v", err)
	}
	if _, err := execute(t, "rebuild", "--log-level", "ERROR", "--summary=false"); err != nil {
		t.Fatalf("rebuild with valid level: %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.Contains(out, "obscore version "+Version) {
		t.Fatalf("unexpected version output %q %v", out, err)
	}
}
