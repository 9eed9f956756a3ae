// Package config loads the console's layered configuration: built-in
// defaults, an optional agentconsole.yaml, AGENTCONSOLE_* environment
// variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"agentconsole/internal/observability"
	"agentconsole/internal/simulator"
)

// Config is the fully resolved configuration shared by every command.
type Config struct {
	Server        ServerConfig         `mapstructure:"server" yaml:"server"`
	Client        ClientConfig         `mapstructure:"client" yaml:"client"`
	Log           LogConfig            `mapstructure:"log" yaml:"log"`
	Simulator     simulator.Config     `mapstructure:"simulator" yaml:"simulator"`
	History       HistoryConfig        `mapstructure:"history" yaml:"history"`
	SettingsFile  string               `mapstructure:"settings_file" yaml:"settings_file"`
	Observability observability.Config `mapstructure:"observability" yaml:"observability"`
}

// ServerConfig configures `agentconsole serve`.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	Environment    string        `mapstructure:"environment" yaml:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	StaticDir      string        `mapstructure:"static_dir" yaml:"static_dir"`
	// ReadOnly serves history and settings but refuses every change.
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`
}

// ClientConfig configures commands that talk to a running console.
type ClientConfig struct {
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
}

// LogConfig configures both the line logger and the request logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// HistoryConfig bounds the finished-run history.
type HistoryConfig struct {
	Capacity      int  `mapstructure:"capacity" yaml:"capacity"`
	SeedDemoTasks bool `mapstructure:"seed_demo_tasks" yaml:"seed_demo_tasks"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8000",
			Environment:    "development",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
		Client: ClientConfig{
			BaseURL:          "http://localhost:8000",
			PollInterval:     time.Second,
			RequestTimeout:   10 * time.Second,
			MaxResponseBytes: 4 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Simulator: simulator.DefaultConfig(),
		History: HistoryConfig{
			Capacity:      500,
			SeedDemoTasks: true,
		},
		Observability: observability.DefaultConfig(),
	}
}

// Validate normalises cfg in place and rejects values no command can run with.
func (c *Config) Validate() error {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	c.Server.Environment = strings.ToLower(strings.TrimSpace(c.Server.Environment))
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	c.Client.BaseURL = strings.TrimRight(strings.TrimSpace(c.Client.BaseURL), "/")
	parsed, err := url.Parse(c.Client.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("client.base_url must be an absolute http(s) URL, got %q", c.Client.BaseURL)
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("client.poll_interval must be positive")
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client.request_timeout must be positive")
	}
	if c.Client.MaxResponseBytes <= 0 {
		return fmt.Errorf("client.max_response_bytes must be positive")
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	case "":
		c.Log.Level = "info"
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format != "json" {
		c.Log.Format = "text"
	}

	if err := c.Simulator.Validate(); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be positive")
	}

	c.Observability.Logging.Level = c.Log.Level
	c.Observability.Logging.Format = c.Log.Format
	c.Observability.Normalize()
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
