// Package config loads pool settings from the environment and job
// definitions from YAML files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/Swind/go-process-pool/core"
)

// EnvPrefix prefixes every environment variable read by LoadSettings.
const EnvPrefix = "PROCESS_POOL_"

// PoolSettings are the process-wide pool defaults.
type PoolSettings struct {
	// MaxSimultaneous bounds running runs; 0 is unbounded.
	MaxSimultaneous int           `env:"MAX_SIMULTANEOUS" envDefault:"0"`
	RunInstantly    bool          `env:"RUN_INSTANTLY" envDefault:"false"`
	Interval        time.Duration `env:"INTERVAL" envDefault:"100ms"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	HistorySize     int           `env:"HISTORY_SIZE" envDefault:"100"`
}

// DefaultSettings returns the settings used when no variable is set.
func DefaultSettings() PoolSettings {
	return PoolSettings{
		MaxSimultaneous: core.Unbounded,
		Interval:        core.DefaultCheckInterval,
		LogLevel:        "info",
		HistorySize:     core.DefaultHistorySize,
	}
}

// LoadSettings reads PoolSettings from PROCESS_POOL_* environment variables.
func LoadSettings() (PoolSettings, error) {
	return loadSettings(env.Options{Prefix: EnvPrefix})
}

// LoadSettingsFrom reads PoolSettings from environ instead of the process environment.
func LoadSettingsFrom(environ map[string]string) (PoolSettings, error) {
	return loadSettings(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func loadSettings(opts env.Options) (PoolSettings, error) {
	var s PoolSettings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return PoolSettings{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return PoolSettings{}, err
	}
	return s, nil
}

// Validate reports every invalid setting.
func (s PoolSettings) Validate() error {
	var errs []error
	if s.MaxSimultaneous < 0 {
		errs = append(errs, fmt.Errorf("max simultaneous must not be negative, got %d", s.MaxSimultaneous))
	}
	if s.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", s.Interval))
	}
	if s.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("history size must not be negative, got %d", s.HistorySize))
	}
	if _, err := s.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid settings: %w", err)
	}
	return nil
}

// Level parses LogLevel. An empty level is info.
func (s PoolSettings) Level() (zerolog.Level, error) {
	if strings.TrimSpace(s.LogLevel) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s.LogLevel)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s.LogLevel)
	}
	return level, nil
}

// PoolConfig returns a core.PoolConfig for a pool called name.
func (s PoolSettings) PoolConfig(name string, logger core.Logger, metrics core.Metrics) core.PoolConfig {
	cfg := core.DefaultPoolConfig()
	cfg.Name = name
	cfg.MaxSimultaneous = s.MaxSimultaneous
	cfg.RunInstantly = s.RunInstantly
	cfg.HistorySize = s.HistorySize
	if logger != nil {
		cfg.Logger = logger
	}
	if metrics != nil {
		cfg.Metrics = metrics
	}
	return cfg
}
