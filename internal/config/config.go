// Manages the krawldb configuration stored in krawldb.yaml.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/maruel/krawldb/internal/errors"
)

// FileName is the default configuration file name inside the data directory.
const FileName = "krawldb.yaml"

// DefaultDatabase is the database name used when none is configured.
const DefaultDatabase = "krawldb"

// Config stores the settings shared by every command.
// Loaded from krawldb.yaml, defaults are used when the file is missing.
type Config struct {
	// DataDir is the private storage directory holding one file per database.
	DataDir string `yaml:"data_dir"`

	// Database is the name of the database to open.
	Database string `yaml:"database"`

	// Codec selects the record codec: "json" or "go-json".
	Codec string `yaml:"codec"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Workers bounds the background pool running queued mutations.
	// 0 means unbounded.
	Workers int `yaml:"workers"`

	// WatchRatePerSec limits how often the watcher re-reads a changed file.
	// 0 means unlimited.
	WatchRatePerSec float64 `yaml:"watch_rate_per_sec"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DataDir:         "./data",
		Database:        DefaultDatabase,
		Codec:           "json",
		LogLevel:        "info",
		Workers:         0,  // unbounded
		WatchRatePerSec: 10, // 10 reloads/s
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New(errors.ErrInvalidConfig, "data_dir is required")
	}
	if c.Database == "" {
		return errors.New(errors.ErrInvalidConfig, "database is required")
	}
	switch c.Codec {
	case "json", "go-json":
	default:
		return errors.Newf(errors.ErrInvalidConfig, "unknown codec: %q", c.Codec)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.ErrInvalidConfig, "unknown log level: %q", c.LogLevel)
	}
	if c.Workers < 0 {
		return errors.New(errors.ErrInvalidConfig, "workers must be non-negative")
	}
	if c.WatchRatePerSec < 0 {
		return errors.New(errors.ErrInvalidConfig, "watch_rate_per_sec must be non-negative")
	}
	return nil
}

// Load loads configuration from path on top of the defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --config flag
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
