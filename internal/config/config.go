// Package config loads service settings with viper: built-in defaults,
// then an optional config file, then SOLARSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SOLARSIM_HTTP_ADDR.
const EnvPrefix = "SOLARSIM"

// ErrInvalidConfig is returned when loaded values fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	PolicyReject = "reject"
	PolicyClamp  = "clamp"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       ListenConfig     `mapstructure:"http"`
	GRPC       ListenConfig     `mapstructure:"grpc"`
	Metrics    ListenConfig     `mapstructure:"metrics"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Output     OutputConfig     `mapstructure:"output"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ListenConfig holds a listen address. An empty address disables the
// listener where that is allowed.
type ListenConfig struct {
	Addr string `mapstructure:"addr"`
}

type SimulationConfig struct {
	MaxDurationHours   float64       `mapstructure:"max_duration_hours"`
	DurationPolicy     string        `mapstructure:"duration_policy"`
	PresentationPoints int           `mapstructure:"presentation_points"`
	MaxDataPoints      int           `mapstructure:"max_data_points"`
	Workers            int           `mapstructure:"workers"`
	RunTimeout         time.Duration `mapstructure:"run_timeout"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type RegistryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

// SetDefaults registers every key with its default so environment
// overrides are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Solar Panel Power Simulator API")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("simulation.max_duration_hours", 24.0)
	v.SetDefault("simulation.duration_policy", PolicyReject)
	v.SetDefault("simulation.presentation_points", 500)
	v.SetDefault("simulation.max_data_points", 24*3600+1)
	v.SetDefault("simulation.workers", 1)
	v.SetDefault("simulation.run_timeout", 30*time.Second)

	v.SetDefault("output.dir", "outputs")
	v.SetDefault("registry.capacity", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "solarsim")
}

// Default returns the configuration with no file and no environment.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads configuration. path may be empty, in which case SOLARSIM_CONFIG
// is consulted; when neither names a file only defaults and environment
// apply.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. All problems are reported together.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.HTTP.Addr == "" {
		add("http.addr must not be empty")
	}
	s := c.Simulation
	if s.MaxDurationHours < 0.1 {
		add("simulation.max_duration_hours must be at least 0.1, got %v", s.MaxDurationHours)
	}
	if s.DurationPolicy != PolicyReject && s.DurationPolicy != PolicyClamp {
		add("simulation.duration_policy must be %q or %q, got %q", PolicyReject, PolicyClamp, s.DurationPolicy)
	}
	if s.PresentationPoints <= 0 {
		add("simulation.presentation_points must be positive, got %d", s.PresentationPoints)
	}
	if s.MaxDataPoints <= 0 {
		add("simulation.max_data_points must be positive, got %d", s.MaxDataPoints)
	}
	if s.Workers <= 0 {
		add("simulation.workers must be positive, got %d", s.Workers)
	}
	if s.RunTimeout <= 0 {
		add("simulation.run_timeout must be positive, got %v", s.RunTimeout)
	}
	if c.Registry.Capacity <= 0 {
		add("registry.capacity must be positive, got %d", c.Registry.Capacity)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		add("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "stdout", "otlp":
	default:
		add("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
