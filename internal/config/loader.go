package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. AGENTCONSOLE_SERVER_ADDR.
const EnvPrefix = "AGENTCONSOLE"

// FileName is the config file looked up without extension.
const FileName = "agentconsole"

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	file     string
	loadedAt time.Time
}

// Source returns the origin of a dotted key such as "server.addr".
func (m Metadata) Source(key string) ValueSource {
	if src, ok := m.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// Keys lists, sorted, the keys whose value did not come from a default.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m.sources))
	for key := range m.sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// File returns the config file that was read, if any.
func (m Metadata) File() string {
	return m.file
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	configPath  string
	searchPaths []string
	overrides   map[string]any
	lookupEnv   func(string) (string, bool)
}

// WithConfigPath forces the loader to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = strings.TrimSpace(path)
	}
}

// WithSearchPaths replaces the directories searched for agentconsole.yaml.
func WithSearchPaths(paths ...string) Option {
	return func(o *loadOptions) {
		o.searchPaths = paths
	}
}

// WithOverride sets key to value above every other source. Commands pass
// the flags the user actually set.
func WithOverride(key string, value any) Option {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = map[string]any{}
		}
		o.overrides[key] = value
	}
}

// WithEnvLookup replaces os.LookupEnv when attributing sources.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) {
		o.lookupEnv = lookup
	}
}

// Load constructs the configuration by merging defaults, file, env and flags.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{
		searchPaths: []string{".", "$HOME/.agentconsole"},
		lookupEnv:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	if options.configPath != "" {
		v.SetConfigFile(options.configPath)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, path := range options.searchPaths {
			v.AddConfigPath(path)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || options.configPath != "" {
			return Config{}, Metadata{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		meta.file = v.ConfigFileUsed()
	}

	for key, value := range options.overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("invalid config: %w", err)
	}

	for _, key := range v.AllKeys() {
		switch {
		case options.overrides[key] != nil:
			meta.sources[key] = SourceOverride
		case envSet(options.lookupEnv, key):
			meta.sources[key] = SourceEnv
		case v.InConfig(key):
			meta.sources[key] = SourceFile
		}
	}
	return cfg, meta, nil
}

func envSet(lookup func(string) (string, bool), key string) bool {
	_, ok := lookup(EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	return ok
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.environment", cfg.Server.Environment)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.static_dir", cfg.Server.StaticDir)
	v.SetDefault("server.read_only", cfg.Server.ReadOnly)

	v.SetDefault("client.base_url", cfg.Client.BaseURL)
	v.SetDefault("client.poll_interval", cfg.Client.PollInterval)
	v.SetDefault("client.request_timeout", cfg.Client.RequestTimeout)
	v.SetDefault("client.max_response_bytes", cfg.Client.MaxResponseBytes)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)

	v.SetDefault("simulator.min_steps", cfg.Simulator.MinSteps)
	v.SetDefault("simulator.max_steps", cfg.Simulator.MaxSteps)
	v.SetDefault("simulator.min_step_delay", cfg.Simulator.MinStepDelay)
	v.SetDefault("simulator.max_step_delay", cfg.Simulator.MaxStepDelay)
	v.SetDefault("simulator.retry_probability", cfg.Simulator.RetryProbability)

	v.SetDefault("history.capacity", cfg.History.Capacity)
	v.SetDefault("history.seed_demo_tasks", cfg.History.SeedDemoTasks)
	v.SetDefault("settings_file", cfg.SettingsFile)

	obs := cfg.Observability
	v.SetDefault("observability.metrics.enabled", obs.Metrics.Enabled)
	v.SetDefault("observability.tracing.enabled", obs.Tracing.Enabled)
	v.SetDefault("observability.tracing.exporter", obs.Tracing.Exporter)
	v.SetDefault("observability.tracing.otlp_endpoint", obs.Tracing.OTLPEndpoint)
	v.SetDefault("observability.tracing.zipkin_endpoint", obs.Tracing.ZipkinEndpoint)
	v.SetDefault("observability.tracing.sample_rate", obs.Tracing.SampleRate)
	v.SetDefault("observability.tracing.service_name", obs.Tracing.ServiceName)
	v.SetDefault("observability.tracing.service_version", obs.Tracing.ServiceVersion)
}
