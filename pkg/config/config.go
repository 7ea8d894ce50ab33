// Package config provides the settings document for mnistsql.
//
// The configuration is organized into logical sections:
//   - Database: connection parameters (the database_info block)
//   - Dataset: where the IDX files live and which split to read
//   - Ingest: target table, batch size, compression and grouping limits
//   - Export: output directory and format for filesystem exports
//   - Logging: level and encoding
//   - Observability: metrics endpoint and tracing
//
// Example usage:
//
//	cfg := config.NewDefault()
//	if err := config.Load("config/config.yaml", cfg); err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"regexp"
	"time"
)

// Config is the root settings document.
type Config struct {
	// Database holds the connection parameters
	Database DatabaseConfig `yaml:"database_info" json:"database_info"`

	// Dataset locates the source IDX files
	Dataset DatasetConfig `yaml:"dataset" json:"dataset"`

	// Ingest controls grouping and the batched writer
	Ingest IngestConfig `yaml:"ingest" json:"ingest"`

	// Export controls filesystem exports
	Export ExportConfig `yaml:"export" json:"export"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`

	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// DatasetConfig locates the dataset files.
type DatasetConfig struct {
	// Root is the directory holding the IDX files
	Root string `yaml:"root" json:"root"`
	// Split is train or test
	Split string `yaml:"split" json:"split"`
	// Mirror is the base URL used by the download command
	Mirror string `yaml:"mirror" json:"mirror"`
	// Download fetches missing files from Mirror before reading
	Download bool `yaml:"download" json:"download"`
}

// IngestConfig contains grouping and writer settings.
type IngestConfig struct {
	// Table is the target table name
	Table string `yaml:"table" json:"table"`
	// BatchSize is the number of rows per bulk insert
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Compress gzips each payload before insert
	Compress bool `yaml:"compress" json:"compress"`
	// CreateIfMissing ensures the table before writing
	CreateIfMissing bool `yaml:"create_if_missing" json:"create_if_missing"`
	// LimitPerLabel caps records per label (0 = unlimited)
	LimitPerLabel int `yaml:"limit_per_label" json:"limit_per_label"`
	// Labels restricts ingestion to a subset of 0..9 (empty = all)
	Labels []int `yaml:"labels" json:"labels"`
}

// ExportConfig contains filesystem export settings.
type ExportConfig struct {
	// OutRoot is the output directory
	OutRoot string `yaml:"out_root" json:"out_root"`
	// Format is png or idx
	Format string `yaml:"format" json:"format"`
	// Compression is the algorithm for idx exports
	Compression string `yaml:"compression" json:"compression"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level" json:"level"`
	// Format is json or console
	Format string `yaml:"format" json:"format"`
}

// ObservabilityConfig contains metrics and tracing settings.
type ObservabilityConfig struct {
	// MetricsAddr serves /metrics when set, e.g. ":9090"
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// Tracing enables OpenTelemetry spans written to stdout
	Tracing bool `yaml:"tracing" json:"tracing"`
	// ServiceName names the tracer resource
	ServiceName string `yaml:"service_name" json:"service_name"`
	// ShutdownTimeout bounds exporter flushing on exit
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultTable is the table name used when none is configured.
const DefaultTable = "MNISTImages"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,115}$`)

// NewDefault creates a configuration with sensible defaults.
func NewDefault() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Server: "localhost",
		},
		Dataset: DatasetConfig{
			Root:  "./data/mnist",
			Split: "train",
		},
		Ingest: IngestConfig{
			Table:           DefaultTable,
			BatchSize:       500,
			Compress:        true,
			CreateIfMissing: true,
		},
		Export: ExportConfig{
			OutRoot:     "./mnist_by_class",
			Format:      "png",
			Compression: "gzip",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Observability: ObservabilityConfig{
			ServiceName:     "mnistsql",
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := NormalizeDriver(c.Database.Driver); err != nil {
		return err
	}
	if err := ValidateTableName(c.Ingest.Table); err != nil {
		return err
	}
	if c.Database.Schema != "" {
		if err := ValidateTableName(c.Database.Schema); err != nil {
			return fmt.Errorf("invalid schema: %w", err)
		}
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Ingest.LimitPerLabel < 0 {
		return fmt.Errorf("limit_per_label cannot be negative")
	}
	for _, l := range c.Ingest.Labels {
		if l < 0 || l > 9 {
			return fmt.Errorf("label %d is outside 0..9", l)
		}
	}
	switch c.Export.Format {
	case "", "png", "idx":
	default:
		return fmt.Errorf("unknown export format %q", c.Export.Format)
	}
	switch c.Dataset.Split {
	case "", "train", "test", "t10k":
	default:
		return fmt.Errorf("unknown dataset split %q", c.Dataset.Split)
	}
	return nil
}

// LabelFilter returns the configured label subset, or nil for all labels.
func (i *IngestConfig) LabelFilter() []int {
	if len(i.Labels) == 0 {
		return nil
	}
	return i.Labels
}

// ValidateTableName reports whether name is usable as an unquoted table name.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
