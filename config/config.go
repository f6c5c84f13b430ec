// Package config loads and validates runtime tuning configuration, with
// optional hot reload through a file watcher.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// schemaConstraint is the range of config schema versions this build
// understands. Files declaring anything else are rejected up front instead of
// being half-applied.
const schemaConstraint = ">= 1.0.0, < 2.0.0"

// SchemaVersion is the schema version written by Default.
const SchemaVersion = "1.0.0"

// Config is the complete runtime configuration.
type Config struct {
	// Version declares the config schema version of the file.
	Version string `yaml:"version"`

	Loop LoopConfig `yaml:"loop"`
	Log  LogConfig  `yaml:"log"`
}

// LoopConfig tunes the event loop.
type LoopConfig struct {
	// PollTimeout bounds how long one poll call may block.
	PollTimeout Duration `yaml:"poll_timeout"`
	// EventCapacity caps how many readiness events one poll returns.
	EventCapacity int `yaml:"event_capacity"`
}

// LogConfig tunes logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name onto slog.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	switch c.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.Level)
	}
}

// Duration is a time.Duration parsed from its string form in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: SchemaVersion,
		Loop: LoopConfig{
			PollTimeout:   Duration(time.Millisecond),
			EventCapacity: 256,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the schema version and value ranges.
func (c *Config) Validate() error {
	version, err := semver.NewVersion(c.Version)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", c.Version, err)
	}
	constraint, err := semver.NewConstraint(schemaConstraint)
	if err != nil {
		return fmt.Errorf("invalid schema constraint: %w", err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("unsupported schema version %s, want %s", version, schemaConstraint)
	}

	if c.Loop.PollTimeout <= 0 {
		return fmt.Errorf("loop.poll_timeout must be positive, got %s", c.Loop.PollTimeout.Std())
	}
	if c.Loop.EventCapacity <= 0 {
		return fmt.Errorf("loop.event_capacity must be positive, got %d", c.Loop.EventCapacity)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}
