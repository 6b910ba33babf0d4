package playerx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the file configuration of a runtime. Keys it does not know are
// ignored, so applications may keep their own sections in the same file.
type Config struct {
	Runtime RuntimeConfig `yaml:"runtime"`
	Log     LogConfig     `yaml:"log"`
}

// RuntimeConfig contains runtime settings.
type RuntimeConfig struct {
	TreeLimit int  `yaml:"tree_limit,omitempty"`
	Metrics   bool `yaml:"metrics,omitempty"`
	Tracing   bool `yaml:"tracing,omitempty"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{TreeLimit: 1000},
		Log:     LogConfig{Level: "info", Format: "human"},
	}
}

// LoadConfig reads a YAML configuration file. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot honour.
func (c *Config) Validate() error {
	if c.Runtime.TreeLimit < 0 {
		return fmt.Errorf("runtime.tree_limit must not be negative, got %d", c.Runtime.TreeLimit)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "human", "text", "json", "silent":
	default:
		return fmt.Errorf("log.format %q is not one of human, text, json, silent", c.Log.Format)
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

// Options returns the runtime options the configuration implies.
func (c *Config) Options(logger *slog.Logger) []RuntimeOption {
	opts := []RuntimeOption{WithLogger(logger)}
	if c.Runtime.TreeLimit > 0 {
		opts = append(opts, WithExecutionTreeLimit(c.Runtime.TreeLimit))
	}
	return opts
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
}
