package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete chatkernel configuration.
type Config struct {
	Reducer       ReducerConfig       `yaml:"reducer"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Runtime       RuntimeConfig       `yaml:"runtime"`
	Log           LogConfig           `yaml:"log"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// ReducerConfig holds history reduction budgets.
type ReducerConfig struct {
	TargetCount        int  `yaml:"target_count"`
	ThresholdCount     int  `yaml:"threshold_count"`
	CountSystemMessage bool `yaml:"count_system_message"`
}

// OrchestrationConfig holds group chat loop settings.
type OrchestrationConfig struct {
	MaximumIterations int `yaml:"maximum_iterations"`
}

// RuntimeConfig holds actor runtime settings.
type RuntimeConfig struct {
	MailboxSize int    `yaml:"mailbox_size"`
	StateStore  string `yaml:"state_store"` // memory | redis | sqlite
	SQLitePath  string `yaml:"sqlite_path"`
	Redis       RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings for the durable state store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Reducer: ReducerConfig{
			TargetCount:    20,
			ThresholdCount: 5,
		},
		Orchestration: OrchestrationConfig{
			MaximumIterations: 10,
		},
		Runtime: RuntimeConfig{
			MailboxSize: 64,
			StateStore:  "memory",
			SQLitePath:  "chatkernel.db",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "chatkernel:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "chatkernel",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Loader loads configuration with the precedence
// defaults → YAML file → environment variables.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a Loader with the default env prefix "CHATKERNEL".
func NewLoader() *Loader {
	return &Loader{envPrefix: "CHATKERNEL"}
}

// WithConfigPath sets the YAML file to load. Optional.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config file %q: %w", l.configPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %q: %w", l.configPath, err)
		}
	}

	if err := l.applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Reducer.TargetCount < 0 || c.Reducer.ThresholdCount < 0 {
		return fmt.Errorf("reducer counts must be non-negative")
	}
	if c.Orchestration.MaximumIterations <= 0 {
		return fmt.Errorf("orchestration.maximum_iterations must be positive")
	}
	switch c.Runtime.StateStore {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("runtime.state_store must be memory, redis, or sqlite, got %q", c.Runtime.StateStore)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	var err error
	setInt := func(key string, dst *int) {
		if err != nil {
			return
		}
		if v, ok := l.lookup(key); ok {
			n, convErr := strconv.Atoi(v)
			if convErr != nil {
				err = fmt.Errorf("env %s_%s: %w", l.envPrefix, key, convErr)
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if err != nil {
			return
		}
		if v, ok := l.lookup(key); ok {
			b, convErr := strconv.ParseBool(v)
			if convErr != nil {
				err = fmt.Errorf("env %s_%s: %w", l.envPrefix, key, convErr)
				return
			}
			*dst = b
		}
	}
	setFloat := func(key string, dst *float64) {
		if err != nil {
			return
		}
		if v, ok := l.lookup(key); ok {
			f, convErr := strconv.ParseFloat(v, 64)
			if convErr != nil {
				err = fmt.Errorf("env %s_%s: %w", l.envPrefix, key, convErr)
				return
			}
			*dst = f
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := l.lookup(key); ok {
			*dst = v
		}
	}

	setInt("REDUCER_TARGET_COUNT", &cfg.Reducer.TargetCount)
	setInt("REDUCER_THRESHOLD_COUNT", &cfg.Reducer.ThresholdCount)
	setBool("REDUCER_COUNT_SYSTEM_MESSAGE", &cfg.Reducer.CountSystemMessage)
	setInt("ORCHESTRATION_MAXIMUM_ITERATIONS", &cfg.Orchestration.MaximumIterations)
	setInt("RUNTIME_MAILBOX_SIZE", &cfg.Runtime.MailboxSize)
	setString("RUNTIME_STATE_STORE", &cfg.Runtime.StateStore)
	setString("RUNTIME_SQLITE_PATH", &cfg.Runtime.SQLitePath)
	setString("RUNTIME_REDIS_ADDR", &cfg.Runtime.Redis.Addr)
	setString("RUNTIME_REDIS_PASSWORD", &cfg.Runtime.Redis.Password)
	setInt("RUNTIME_REDIS_DB", &cfg.Runtime.Redis.DB)
	setString("RUNTIME_REDIS_KEY_PREFIX", &cfg.Runtime.Redis.KeyPrefix)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	setString("TELEMETRY_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	setString("TELEMETRY_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	setFloat("TELEMETRY_SAMPLE_RATE", &cfg.Telemetry.SampleRate)

	return err
}

func (l *Loader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(l.envPrefix + "_" + strings.ToUpper(key))
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
