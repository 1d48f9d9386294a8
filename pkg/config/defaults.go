package config

import (
	"strings"
	"time"

	"github.com/marmos91/gorpcd/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyRuntimeDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyRuntimeDefaults sets defaults for the event loop / worker pool knobs.
func applyRuntimeDefaults(cfg *Config) {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{"unix:///tmp/gorpcd.sock"}
	}

	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = 8
	}

	if cfg.RPCTimeout == 0 {
		cfg.RPCTimeout = 30 * time.Second
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = 4 * bytesize.MiB
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging:   LoggingConfig{},
		Endpoints: nil,
	}

	ApplyDefaults(cfg)
	return cfg
}
