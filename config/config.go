// Package config provides bus configuration loading.
//
// Configuration lives in a TOML file; every field has a default so an
// empty file (or no file at all) yields a working bus.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Common errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Duration wraps time.Duration for TOML decoding ("30s", "5m").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all bus tuning parameters.
type Config struct {
	// Dispatch
	DispatchTimeout Duration `toml:"dispatch_timeout"` // bound on one agent handle call
	PingTimeout     Duration `toml:"ping_timeout"`     // bound on one health probe

	// Breaker
	FailureThreshold int      `toml:"failure_threshold"` // failures before tripping
	RecoveryTimeout  Duration `toml:"recovery_timeout"`  // open -> half-open delay
	CloseAfter       int      `toml:"close_after"`       // half-open successes to close

	// Bounded stores
	EventLogCapacity    int `toml:"event_log_capacity"`
	PipelineArchiveSize int `toml:"pipeline_archive_size"`
	HealthWindow        int `toml:"health_window"`
	ContextLimit        int `toml:"context_limit"` // shared context store key bound

	// Logging
	LogLevel string `toml:"log_level"` // DEBUG, INFO, WARN, ERROR
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		DispatchTimeout:     Duration(30 * time.Second),
		PingTimeout:         Duration(5 * time.Second),
		FailureThreshold:    5,
		RecoveryTimeout:     Duration(30 * time.Second),
		CloseAfter:          3,
		EventLogCapacity:    10000,
		PipelineArchiveSize: 1000,
		HealthWindow:        20,
		ContextLimit:        256,
		LogLevel:            "INFO",
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("%w: dispatch_timeout must be positive", ErrInvalidConfig)
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("%w: ping_timeout must be positive", ErrInvalidConfig)
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("%w: failure_threshold must be positive", ErrInvalidConfig)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("%w: recovery_timeout must be positive", ErrInvalidConfig)
	}
	if c.CloseAfter <= 0 {
		return fmt.Errorf("%w: close_after must be positive", ErrInvalidConfig)
	}
	if c.EventLogCapacity <= 0 {
		return fmt.Errorf("%w: event_log_capacity must be positive", ErrInvalidConfig)
	}
	if c.PipelineArchiveSize <= 0 {
		return fmt.Errorf("%w: pipeline_archive_size must be positive", ErrInvalidConfig)
	}
	if c.HealthWindow <= 0 {
		return fmt.Errorf("%w: health_window must be positive", ErrInvalidConfig)
	}
	if c.ContextLimit <= 0 {
		return fmt.Errorf("%w: context_limit must be positive", ErrInvalidConfig)
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// Load reads a TOML file over the defaults. A missing file is not an
// error; it yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
