package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the monitor configuration file.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `yaml:"addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// MaxHistory bounds each session's timeline.
	MaxHistory int `yaml:"max_history"`
	// ShutdownTimeout is how long in-flight requests get on shutdown, in
	// seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		LogLevel:        "info",
		MaxHistory:      1000,
		ShutdownTimeout: 5,
	}
}

// LoadConfig reads path over the defaults. An empty path yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("config: max_history must be positive, got %d", c.MaxHistory)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: shutdown_timeout must not be negative, got %d", c.ShutdownTimeout)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return level, nil
}
