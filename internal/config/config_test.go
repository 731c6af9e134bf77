package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"obscore/internal/core"
	"obscore/internal/errs"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obscore.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Cache.ThreadCount != 5 || cfg.Stream.ChunkSize != 1000 || cfg.Stream.Dedup || cfg.Stream.MaxSeries != 0 || cfg.Cache.DefaultLocale != "en" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := writeFile(t, `
cache:
  threadCount: 3
  defaultLocale: de
stream:
  chunkSize: 250
  dedup: true
  maxSeries: 20
datastore:
  driver: memory
  poolSize: 4
log:
  level: debug
`)
	cfg, err := Loader{Getenv: envMap(map[string]string{
		"OBSCORE_CACHE_THREAD_COUNT": "4",
		"OBSCORE_SNAPSHOT_DRIVER":    "fs",
		"OBSCORE_SNAPSHOT_FS_ROOT":   "/var/lib/obscore",
		"OBSCORE_STREAM_MAX_SERIES":  "8",
	})}.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.ThreadCount != 4 || cfg.Stream.ChunkSize != 250 || !cfg.Stream.Dedup {
		t.Fatalf("unexpected layering %+v", cfg)
	}
	if cfg.Stream.MaxSeries != 8 || cfg.Cache.DefaultLocale != "de" {
		t.Fatalf("unexpected stream/cache %+v %+v", cfg.Stream, cfg.Cache)
	}
	if cfg.Datastore.Driver != "memory" || cfg.Snapshot.Driver != SnapshotFS || cfg.Snapshot.FSRoot != "/var/lib/obscore" {
		t.Fatalf("unexpected datastore/snapshot %+v %+v", cfg.Datastore, cfg.Snapshot)
	}
	if got := cfg.Storage(); got.Driver != core.StorageMemory || got.PoolSize != 4 || !got.ApplySchema {
		t.Fatalf("unexpected storage config %+v", got)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "cache:\n  threads: 3\n")
	if _, err := (Loader{Getenv: envMap(nil)}).Load(path); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestLoadAcceptsEmptyFile(t *testing.T) {
	cfg, err := Loader{Getenv: envMap(nil)}.Load(writeFile(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.ThreadCount != core.DefaultThreadCount {
		t.Fatalf("expected defaults, got %+v", cfg.Cache)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	for key, value := range map[string]string{
		"OBSCORE_STREAM_CHUNK_SIZE": "lots",
		"OBSCORE_STREAM_DEDUP":      "maybe",
		"OBSCORE_STREAM_MAX_SERIES": "all",
	} {
		_, err := Loader{Getenv: envMap(map[string]string{key: value})}.Load("")
		var cfgErr *errs.ConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Field != key {
			t.Fatalf("%s=%s: expected ConfigurationError, got %v", key, value, err)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero threads", func(c *Config) { c.Cache.ThreadCount = 0 }, "cache.threadCount"},
		{"negative threads", func(c *Config) { c.Cache.ThreadCount = -2 }, "cache.threadCount"},
		{"zero chunk", func(c *Config) { c.Stream.ChunkSize = 0 }, "stream.chunkSize"},
		{"negative series cap", func(c *Config) { c.Stream.MaxSeries = -1 }, "stream.maxSeries"},
		{"empty default locale", func(c *Config) { c.Cache.DefaultLocale = "" }, "cache.defaultLocale"},
		{"unknown driver", func(c *Config) { c.Datastore.Driver = "oracle" }, "datastore.driver"},
		{"pool below threads", func(c *Config) { c.Datastore.PoolSize = 2 }, "datastore.poolSize"},
		{"s3 without bucket", func(c *Config) { c.Snapshot.Driver = SnapshotS3 }, "snapshot.s3.bucket"},
		{"unknown snapshot driver", func(c *Config) { c.Snapshot.Driver = "tape" }, "snapshot.driver"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			var cfgErr *errs.ConfigurationError
			if err := cfg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != tc.field {
				t.Fatalf("expected ConfigurationError on %s, got %v", tc.field, err)
			}
		})
	}

	cfg := Default()
	cfg.Datastore.PoolSize = cfg.Cache.ThreadCount
	if err := cfg.Validate(); err != nil {
		t.Fatalf("pool equal to threads should pass: %v", err)
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "Warn", "error"} {
		if err := ValidateLogLevel("--log-level", level); err != nil {
			t.Fatalf("%s: %v", level, err)
		}
	}
	var cfgErr *errs.ConfigurationError
	if err := ValidateLogLevel("--log-level", "verbose"); !errors.As(err, &cfgErr) || cfgErr.Field != "--log-level" {
		t.Fatalf("expected ConfigurationError on --log-level, got %v", err)
	}
}
