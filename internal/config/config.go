// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and the environment on top of New().
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"time"

	"github.com/okian/promille/internal/domain/catalog"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DiscordToken is the bot token. Empty runs the service without a
	// chat connection (HTTP only).
	DiscordToken string `koanf:"discord_token"`

	// CommandPrefix starts every chat command.
	CommandPrefix string `koanf:"command_prefix"`

	// DataFile is the JSON state file.
	DataFile string `koanf:"data_file"`

	// ArchivePath is the SQLite file receiving completed months.
	ArchivePath string `koanf:"archive_path"`

	// SweepInterval is the period of the expiry sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// RolloverInterval is the period of the month-boundary check.
	RolloverInterval time.Duration `koanf:"rollover_interval"`

	// QueueSize bounds the serial task queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many gateway event IDs are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// RenameRatePerSec and RenameBurst throttle platform renames.
	RenameRatePerSec float64 `koanf:"rename_rate_per_sec"`
	RenameBurst      int     `koanf:"rename_burst"`

	// ExpiryRenameAll re-renders every member touched by a sweep instead
	// of owners only.
	ExpiryRenameAll bool `koanf:"expiry_rename_all"`

	// MetricsEnabled turns the Prometheus recorders on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshInterval is the period of the gauge updaters.
	MetricsRefreshInterval time.Duration `koanf:"metrics_refresh_interval"`

	// Categories overrides the built-in catalog when non-empty.
	Categories []catalog.Category `koanf:"categories"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "json",
		Addr:             ":9080",
		CommandPrefix:    ".",
		DataFile:         "data/status.json",
		ArchivePath:      "data/archive.db",
		SweepInterval:    time.Minute,
		RolloverInterval: time.Hour,
		QueueSize:        1024,
		DedupeSize:       4096,
		RenameRatePerSec: 2,
		RenameBurst:      5,

		MetricsEnabled:         true,
		MetricsRefreshInterval: 10 * time.Second,
	}
}

// Catalog builds the category catalog from Categories, falling back to
// catalog.Default when none are configured.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	if len(c.Categories) == 0 {
		return catalog.Default(), nil
	}
	cat, err := catalog.New(c.Categories)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cat, nil
}

// Validate checks values Load cannot express through types.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep_interval must be positive", ErrInvalidConfig)
	case c.RolloverInterval <= 0:
		return fmt.Errorf("%w: rollover_interval must be positive", ErrInvalidConfig)
	case c.CommandPrefix == "":
		return fmt.Errorf("%w: command_prefix must not be empty", ErrInvalidConfig)
	case c.DataFile == "":
		return fmt.Errorf("%w: data_file must not be empty", ErrInvalidConfig)
	case c.RenameRatePerSec <= 0:
		return fmt.Errorf("%w: rename_rate_per_sec must be positive", ErrInvalidConfig)
	case c.MetricsRefreshInterval <= 0:
		return fmt.Errorf("%w: metrics_refresh_interval must be positive", ErrInvalidConfig)
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}
