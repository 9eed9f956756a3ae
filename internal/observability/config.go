package observability

import "strings"

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// LoggingConfig configures the structured request logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // json, text
}

// DefaultConfig returns the default observability configuration
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "agentconsole",
			ServiceVersion: "dev",
		},
	}
}

// Normalize fills zero values with defaults and clamps out-of-range values.
func (c *Config) Normalize() {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format != "json" {
		c.Logging.Format = defaults.Logging.Format
	}
	if strings.TrimSpace(c.Tracing.Exporter) == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	// A zero sample rate cannot be expressed; disable tracing instead.
	if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1.0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
	if strings.TrimSpace(c.Tracing.ServiceName) == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if strings.TrimSpace(c.Tracing.ServiceVersion) == "" {
		c.Tracing.ServiceVersion = defaults.Tracing.ServiceVersion
	}
}
