// Package config loads runtime settings for patternbus from a YAML file and environment overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/saylorsolutions/patternbus/dispatch"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

const (
	SchedulerAsync  = "async"
	SchedulerSerial = "serial"

	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the full set of runtime settings.
type Config struct {
	Log            LogConfig       `yaml:"log"`
	Scheduler      SchedulerConfig `yaml:"scheduler"`
	Transport      TransportConfig `yaml:"transport"`
	Metrics        MetricsConfig   `yaml:"metrics"`
	RequestTimeout time.Duration   `yaml:"requestTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SchedulerConfig struct {
	Mode    string `yaml:"mode"`
	Backlog int    `yaml:"backlog"`
}

type TransportConfig struct {
	CopyPayloads bool `yaml:"copyPayloads"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: FormatAuto,
		},
		Scheduler: SchedulerConfig{
			Mode: SchedulerAsync,
		},
		Metrics: MetricsConfig{
			Namespace: "patternbus",
		},
		RequestTimeout: 5 * time.Second,
	}
}

// Load reads the YAML file at path over the defaults, then applies environment overrides.
// An empty path skips the file.
// The result is validated before it's returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if len(path) > 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}
	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg.
// Fields that aren't present in data keep their current values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks every setting, and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case FormatAuto, FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log format '%s'", ErrInvalidConfig, c.Log.Format))
	}
	switch strings.ToLower(c.Scheduler.Mode) {
	case SchedulerAsync, SchedulerSerial:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown scheduler mode '%s'", ErrInvalidConfig, c.Scheduler.Mode))
	}
	if c.Scheduler.Backlog < 0 {
		errs = append(errs, fmt.Errorf("%w: scheduler backlog must not be negative", ErrInvalidConfig))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// SlogLevel parses the configured level name.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level '%s'", ErrInvalidConfig, c.Level)
	}
	return level, nil
}

// Build creates the configured [dispatch.Scheduler].
// The returned stop function waits for a serial scheduler to finish its backlog, and is a no-op for async scheduling.
func (c SchedulerConfig) Build(ctx context.Context) (dispatch.Scheduler, func(timeout time.Duration) error, error) {
	switch strings.ToLower(c.Mode) {
	case SchedulerAsync:
		return dispatch.Async(), func(time.Duration) error { return nil }, nil
	case SchedulerSerial:
		serial, err := dispatch.NewSerial(ctx, dispatch.InitialBacklog(c.Backlog))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return serial, func(timeout time.Duration) error {
			return serial.AwaitStop(timeout)
		}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown scheduler mode '%s'", ErrInvalidConfig, c.Mode)
	}
}
