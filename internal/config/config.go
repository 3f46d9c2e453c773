// Package config provides configuration structures and defaults for shaledb.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const defaultIndexInterval = 16

// Config holds the tunable parameters of a database instance.
type Config struct {
	// IndexInterval is how many SSTable records separate two sparse index
	// entries.
	IndexInterval int `yaml:"index_interval"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the structured logger built for the engine.
type LoggingConfig struct {
	// Level is a zap level name ("debug", "info", ...). Empty disables
	// logging entirely.
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config populated with default values. Logging is
// disabled by default; an embedded store should not write to stderr unasked.
func DefaultConfig() *Config {
	return &Config{
		IndexInterval: defaultIndexInterval,
	}
}

// FillDefaults sets any zero-value fields to their default values.
func (c *Config) FillDefaults() {
	if c.IndexInterval == 0 {
		c.IndexInterval = defaultIndexInterval
	}
}

// Load reads a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.FillDefaults()
	return &cfg, nil
}

// BuildLogger constructs the zap logger described by the logging section.
func (l LoggingConfig) BuildLogger() (*zap.Logger, error) {
	if l.Level == "" {
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if l.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
