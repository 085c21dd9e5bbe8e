package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// Config holds the complete application configuration.
type Config struct {
	OpenSearch OpenSearchConfig `koanf:"opensearch"`
	Query      QueryConfig      `koanf:"query"`
	Bulk       BulkConfig       `koanf:"bulk"`
	Loader     LoaderConfig     `koanf:"loader"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type OpenSearchConfig struct {
	URL       string        `koanf:"url"`
	Username  string        `koanf:"username"`
	Password  string        `koanf:"password"`
	Timeout   time.Duration `koanf:"timeout"`
	Retries   uint64        `koanf:"retries"` // Retries for 429/502/503/504 and network errors.
	TLSConfig TLSConfig     `koanf:"tls"`
}

type TLSConfig struct {
	SkipVerify bool   `koanf:"skip_verify"`
	CACert     string `koanf:"ca_cert"`
}

type QueryConfig struct {
	BypassMapValidation bool `koanf:"bypass_map_validation"` // Skip keyword-field resolution for exact/in/nin.
	AllowIDSort         bool `koanf:"allow_id_sort"`
	InnerHitsSize       int  `koanf:"inner_hits_size"`
}

type BulkConfig struct {
	ChunkSize   int    `koanf:"chunk_size"`
	Workers     int    `koanf:"workers"` // 1 dispatches chunks sequentially.
	Refresh     bool   `koanf:"refresh"`
	GenerateIDs bool   `koanf:"generate_ids"`
	SchemaFile  string `koanf:"schema_file"` // Optional JSON schema every document must satisfy.
	ReturnData  bool   `koanf:"return_data"` // Return inserted documents instead of counters.
}

type LoaderConfig struct {
	Index         string   `koanf:"index"`
	Sources       []string `koanf:"sources"` // NDJSON files or glob patterns.
	Schedule      string   `koanf:"schedule"`
	CheckpointDir string   `koanf:"checkpoint_dir"`

	// DistributedLock guards each source with a lock document on the
	// cluster so concurrent loaders never ingest the same file twice.
	DistributedLock bool          `koanf:"distributed_lock"`
	LockTTL         time.Duration `koanf:"lock_ttl"`
	RecordRuns      bool          `koanf:"record_runs"` // Write a run summary document per source.
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

// Load reads configuration from the given YAML file path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.OpenSearch.Timeout <= 0 {
		cfg.OpenSearch.Timeout = 30 * time.Second
	}
	if cfg.OpenSearch.Retries == 0 {
		cfg.OpenSearch.Retries = 3
	}
	if cfg.Query.InnerHitsSize <= 0 {
		cfg.Query.InnerHitsSize = 100
	}
	if cfg.Bulk.ChunkSize <= 0 {
		cfg.Bulk.ChunkSize = 1000
	}
	if cfg.Bulk.Workers <= 0 {
		cfg.Bulk.Workers = 1
	}
	if cfg.Loader.Schedule == "" {
		cfg.Loader.Schedule = "*/15 * * * *"
	}
	if cfg.Loader.CheckpointDir == "" {
		cfg.Loader.CheckpointDir = "/var/lib/docquery"
	}
	if cfg.Loader.LockTTL <= 0 {
		cfg.Loader.LockTTL = time.Hour
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9464"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func validate(cfg *Config) error {
	if cfg.OpenSearch.URL == "" {
		return fmt.Errorf("opensearch.url is required")
	}
	u, err := url.Parse(cfg.OpenSearch.URL)
	if err != nil {
		return fmt.Errorf("invalid opensearch.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid opensearch.url: scheme must be http or https, got %q", u.Scheme)
	}

	if cfg.Bulk.ChunkSize > 10000 {
		return fmt.Errorf("bulk.chunk_size must not exceed 10000, got %d", cfg.Bulk.ChunkSize)
	}

	if len(cfg.Loader.Sources) > 0 && cfg.Loader.Index == "" {
		return fmt.Errorf("loader.index is required when loader.sources is set")
	}
	if _, err := cron.ParseStandard(cfg.Loader.Schedule); err != nil {
		return fmt.Errorf("invalid loader.schedule %q: %w", cfg.Loader.Schedule, err)
	}

	return nil
}
