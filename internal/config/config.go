// Package config loads pivoter configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pivoter configuration.
type Config struct {
	Locations []Location     `yaml:"locations"`
	Storage   StorageConfig  `yaml:"storage"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Retry     RetryConfig    `yaml:"retry"`
	State     StateConfig    `yaml:"state"`
	Catalog   CatalogConfig  `yaml:"catalog"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// Location describes one physical sensor location to process.
// YearFrom/YearTo optionally bound which discovered years are taken.
type Location struct {
	City       string `yaml:"city"`
	LocationID string `yaml:"location_id"`
	YearFrom   int    `yaml:"year_from"`
	YearTo     int    `yaml:"year_to"`
}

// StorageConfig selects and configures the object store backend.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // "s3" | "gcs" | "file" | "mem"
	Bucket     string `yaml:"bucket"`
	S3Endpoint string `yaml:"s3_endpoint"` // custom endpoint for B2/MinIO/R2
	S3Region   string `yaml:"s3_region"`
	LocalDir   string `yaml:"local_dir"` // root for the "file" backend
}

// PipelineConfig tunes the main batch pass.
type PipelineConfig struct {
	Workers           int  `yaml:"workers"`
	UploadAttempts    int  `yaml:"upload_attempts"`
	UploadBaseDelayMs int  `yaml:"upload_base_delay_ms"`
	ParquetMirror     bool `yaml:"parquet_mirror"`
}

// RetryConfig tunes the post-batch retry driver.
type RetryConfig struct {
	MaxPasses    int `yaml:"max_passes"`
	UnitAttempts int `yaml:"unit_attempts"`
	DelaySec     int `yaml:"delay_sec"`
}

// StateConfig locates durable run state (failure ledger, scratch, report).
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// CatalogConfig configures the optional Postgres run catalog.
type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// LedgerPath returns the failure ledger file location.
func (c Config) LedgerPath() string {
	return filepath.Join(c.State.Dir, "failed_files.txt")
}

// ReportPath returns the end-of-run report file location.
func (c Config) ReportPath() string {
	return filepath.Join(c.State.Dir, "run_report.json")
}

// ScratchDir returns the local scratch directory for transform artifacts.
func (c Config) ScratchDir() string {
	return filepath.Join(c.State.Dir, "scratch")
}

// UploadBaseDelay returns the backoff base as a duration.
func (c Config) UploadBaseDelay() time.Duration {
	return time.Duration(c.Pipeline.UploadBaseDelayMs) * time.Millisecond
}

// RetryDelay returns the inter-attempt delay of the retry driver.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelaySec) * time.Second
}

// MustLoad reads configuration or exits the process.
func MustLoad() Config {
	cfg, err := Load(getenvDefault("CONFIG_FILE", "config.yaml"))
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file is allowed when all
// required values arrive via environment variables.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		log.Printf("[config] no config file at %s, using environment only", path)
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.Storage.S3Endpoint = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.Storage.S3Region = v
	}
	if v := os.Getenv("LOCAL_DIR"); v != "" {
		c.Storage.LocalDir = v
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("UPLOAD_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.UploadAttempts = n
		}
	}
	if v := os.Getenv("RETRY_PASSES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxPasses = n
		}
	}
	if v := os.Getenv("STATE_DIR"); v != "" {
		c.State.Dir = v
	}
	if v := os.Getenv("CATALOG_DSN"); v != "" {
		c.Catalog.PostgresDSN = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./data"
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.UploadAttempts <= 0 {
		c.Pipeline.UploadAttempts = 5
	}
	if c.Pipeline.UploadBaseDelayMs <= 0 {
		c.Pipeline.UploadBaseDelayMs = 2000
	}
	if c.Retry.MaxPasses <= 0 {
		c.Retry.MaxPasses = 5
	}
	if c.Retry.UnitAttempts <= 0 {
		c.Retry.UnitAttempts = 5
	}
	if c.Retry.DelaySec <= 0 {
		c.Retry.DelaySec = 20
	}
	if c.State.Dir == "" {
		c.State.Dir = "./state"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "file", "mem":
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket required for %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	for i, loc := range c.Locations {
		if loc.City == "" || loc.LocationID == "" {
			return fmt.Errorf("locations[%d]: city and location_id are required", i)
		}
		if loc.YearFrom > 0 && loc.YearTo > 0 && loc.YearFrom > loc.YearTo {
			return fmt.Errorf("locations[%d]: year_from %d after year_to %d", i, loc.YearFrom, loc.YearTo)
		}
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
