// Package config loads obscore settings from defaults, an optional YAML file
// and OBSCORE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"obscore/internal/cache"
	"obscore/internal/core"
	"obscore/internal/errs"
	"obscore/internal/events"
	"obscore/internal/stream"
)

// Snapshot drivers.
const (
	SnapshotNone   = "none"
	SnapshotMemory = "memory"
	SnapshotFS     = "fs"
	SnapshotS3     = "s3"
)

// Config is the complete runtime configuration.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Stream    StreamConfig    `yaml:"stream"`
	Datastore DatastoreConfig `yaml:"datastore"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Events    EventsConfig    `yaml:"events"`
	Log       LogConfig       `yaml:"log"`
}

// CacheConfig sizes the cache feeder.
type CacheConfig struct {
	ThreadCount   int    `yaml:"threadCount"`
	DefaultLocale string `yaml:"defaultLocale"`
}

// StreamConfig tunes series streaming.
type StreamConfig struct {
	ChunkSize int  `yaml:"chunkSize"`
	Dedup     bool `yaml:"dedup"`
	// MaxSeries caps how many series one query may resolve to; 0 disables the cap.
	MaxSeries int `yaml:"maxSeries"`
}

// DatastoreConfig selects the observation store.
type DatastoreConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlitePath"`
	PostgresDSN string `yaml:"postgresDSN"`
	FixturePath string `yaml:"fixturePath"`
	PoolSize    int    `yaml:"poolSize"`
	ApplySchema bool   `yaml:"applySchema"`
}

// SnapshotConfig selects where cache snapshots are persisted.
type SnapshotConfig struct {
	Driver string         `yaml:"driver"`
	Key    string         `yaml:"key"`
	FSRoot string         `yaml:"fsRoot"`
	S3     SnapshotS3Conf `yaml:"s3"`
}

// SnapshotS3Conf addresses an S3 compatible bucket. Credentials are taken
// from the environment or the default AWS chain, never from the file.
type SnapshotS3Conf struct {
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"pathStyle"`
}

// EventsConfig enables rebuild announcements over NATS when NATSURL is set.
type EventsConfig struct {
	NATSURL string `yaml:"natsURL"`
	Subject string `yaml:"subject"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cache:  CacheConfig{ThreadCount: core.DefaultThreadCount, DefaultLocale: cache.DefaultLocale},
		Stream: StreamConfig{ChunkSize: stream.DefaultChunkSize},
		Datastore: DatastoreConfig{
			Driver:      string(core.StorageSQLite),
			SQLitePath:  "obscore.db",
			ApplySchema: true,
		},
		Snapshot: SnapshotConfig{Driver: SnapshotNone, FSRoot: "./snapshots"},
		Events:   EventsConfig{Subject: events.DefaultSubject},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFromFile overlays the YAML document at path onto cfg.
func LoadFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// an empty document leaves cfg untouched
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Loader resolves the configuration. Getenv defaults to os.Getenv.
type Loader struct {
	Getenv func(string) string
}

// Load layers defaults, the file at path (skipped when empty) and the
// environment, then validates the result.
func (l Loader) Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := l.applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is Loader{}.Load.
func Load(path string) (Config, error) { return Loader{}.Load(path) }

func (l Loader) applyEnv(cfg *Config) error {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &errs.ConfigurationError{Field: key, Reason: fmt.Sprintf("not an integer: %q", v)}
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &errs.ConfigurationError{Field: key, Reason: fmt.Sprintf("not a boolean: %q", v)}
		}
		*dst = b
		return nil
	}

	str("OBSCORE_STORAGE_DRIVER", &cfg.Datastore.Driver)
	str("OBSCORE_SQLITE_PATH", &cfg.Datastore.SQLitePath)
	str("OBSCORE_POSTGRES_DSN", &cfg.Datastore.PostgresDSN)
	str("OBSCORE_FIXTURE_PATH", &cfg.Datastore.FixturePath)
	str("OBSCORE_SNAPSHOT_DRIVER", &cfg.Snapshot.Driver)
	str("OBSCORE_SNAPSHOT_KEY", &cfg.Snapshot.Key)
	str("OBSCORE_SNAPSHOT_FS_ROOT", &cfg.Snapshot.FSRoot)
	str("OBSCORE_SNAPSHOT_S3_BUCKET", &cfg.Snapshot.S3.Bucket)
	str("OBSCORE_SNAPSHOT_S3_REGION", &cfg.Snapshot.S3.Region)
	str("OBSCORE_SNAPSHOT_S3_PREFIX", &cfg.Snapshot.S3.Prefix)
	str("OBSCORE_SNAPSHOT_S3_ENDPOINT", &cfg.Snapshot.S3.Endpoint)
	str("OBSCORE_NATS_URL", &cfg.Events.NATSURL)
	str("OBSCORE_NATS_SUBJECT", &cfg.Events.Subject)
	str("OBSCORE_LOG_LEVEL", &cfg.Log.Level)
	str("OBSCORE_LOG_FORMAT", &cfg.Log.Format)
	str("OBSCORE_CACHE_DEFAULT_LOCALE", &cfg.Cache.DefaultLocale)
	for key, dst := range map[string]*int{
		"OBSCORE_CACHE_THREAD_COUNT": &cfg.Cache.ThreadCount,
		"OBSCORE_STREAM_CHUNK_SIZE":  &cfg.Stream.ChunkSize,
		"OBSCORE_STREAM_MAX_SERIES":  &cfg.Stream.MaxSeries,
		"OBSCORE_POOL_SIZE":          &cfg.Datastore.PoolSize,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*bool{
		"OBSCORE_STREAM_DEDUP":           &cfg.Stream.Dedup,
		"OBSCORE_APPLY_SCHEMA":           &cfg.Datastore.ApplySchema,
		"OBSCORE_SNAPSHOT_S3_PATH_STYLE": &cfg.Snapshot.S3.PathStyle,
	} {
		if err := flag(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects settings the feeder or the stream source would refuse,
// and a pool too small for the worker pool.
func (c Config) Validate() error {
	if c.Cache.ThreadCount <= 0 {
		return &errs.ConfigurationError{Field: "cache.threadCount", Reason: fmt.Sprintf("must be greater than zero, got %d", c.Cache.ThreadCount)}
	}
	if c.Stream.ChunkSize <= 0 {
		return &errs.ConfigurationError{Field: "stream.chunkSize", Reason: fmt.Sprintf("must be greater than zero, got %d", c.Stream.ChunkSize)}
	}
	if c.Stream.MaxSeries < 0 {
		return &errs.ConfigurationError{Field: "stream.maxSeries", Reason: fmt.Sprintf("must not be negative, got %d", c.Stream.MaxSeries)}
	}
	if c.Cache.DefaultLocale == "" {
		return &errs.ConfigurationError{Field: "cache.defaultLocale", Reason: "must not be empty"}
	}
	switch core.StorageDriver(c.Datastore.Driver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return &errs.ConfigurationError{Field: "datastore.driver", Reason: fmt.Sprintf("unknown driver %q", c.Datastore.Driver)}
	}
	if c.Datastore.PoolSize < 0 {
		return &errs.ConfigurationError{Field: "datastore.poolSize", Reason: "must not be negative"}
	}
	if c.Datastore.PoolSize > 0 && c.Datastore.PoolSize < c.Cache.ThreadCount {
		return &errs.ConfigurationError{
			Field:  "datastore.poolSize",
			Reason: fmt.Sprintf("%d is smaller than cache.threadCount %d; tasks would starve waiting for connections", c.Datastore.PoolSize, c.Cache.ThreadCount),
		}
	}
	switch c.Snapshot.Driver {
	case SnapshotNone, SnapshotMemory, SnapshotFS:
	case SnapshotS3:
		if c.Snapshot.S3.Bucket == "" {
			return &errs.ConfigurationError{Field: "snapshot.s3.bucket", Reason: "required for the s3 driver"}
		}
	default:
		return &errs.ConfigurationError{Field: "snapshot.driver", Reason: fmt.Sprintf("unknown driver %q", c.Snapshot.Driver)}
	}
	return ValidateLogLevel("log.level", c.Log.Level)
}

// ValidateLogLevel reports a ConfigurationError naming field unless level is
// one of debug, info, warn or error (case-insensitive).
func ValidateLogLevel(field, level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return &errs.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown level %q", level)}
	}
}

// Storage converts the datastore section for core.OpenBackend.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Datastore.Driver),
		SQLitePath:  c.Datastore.SQLitePath,
		PostgresDSN: c.Datastore.PostgresDSN,
		FixturePath: c.Datastore.FixturePath,
		PoolSize:    c.Datastore.PoolSize,
		ApplySchema: c.Datastore.ApplySchema,
	}
}
