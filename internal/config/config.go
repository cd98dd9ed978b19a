// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the classifier, CLI and daemon
type Config struct {
	// Server configuration
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`

	// Model assets
	Model          string `mapstructure:"model"`
	Tokenizer      string `mapstructure:"tokenizer"`
	Labels         string `mapstructure:"labels"`
	ONNXLibrary    string `mapstructure:"onnx_library"`
	IntraOpThreads int    `mapstructure:"intra_op_threads"`

	// Sequence policy; max_seq_len 0 leaves sequences unpadded
	MaxSeqLen int   `mapstructure:"max_seq_len"`
	PadID     int64 `mapstructure:"pad_id"`

	// Result cache; an empty redis address selects the in-process cache
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	Redis        string        `mapstructure:"redis"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`

	// Prediction journal; empty disables it
	History string `mapstructure:"history"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 50051)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("model", "models/model.onnx")
	v.SetDefault("tokenizer", "models/tokenizer.json")
	v.SetDefault("labels", "")
	v.SetDefault("onnx_library", "")
	v.SetDefault("intra_op_threads", 0)
	v.SetDefault("max_seq_len", 0)
	v.SetDefault("pad_id", 0)
	v.SetDefault("cache_enabled", false)
	v.SetDefault("redis", "")
	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("history", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("use_mock_inference", false)
}

func bindEnv(v *viper.Viper) {
	// Environment variable configuration
	v.SetEnvPrefix("INTENT_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind the non-obvious ones explicitly
	v.BindEnv("otel_endpoint", "INTENT_SERVICE_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("use_mock_inference", "INTENT_SERVICE_USE_MOCK")
	v.BindEnv("onnx_library", "INTENT_SERVICE_ONNX_LIBRARY", "ONNXRUNTIME_SHARED_LIBRARY_PATH")
}

// New returns a viper instance with defaults and environment bindings only.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return v
}

// Load loads configuration from environment variables and an optional config file.
// Priority (highest to lowest): env vars > config file > defaults
func Load() (*Config, error) {
	v, err := Open("")
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// LoadWithConfigFile loads configuration from a specific config file
func LoadWithConfigFile(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required")
	}
	v, err := Open(configPath)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Open returns a viper instance with defaults, environment bindings and the
// config file at configPath. An empty configPath searches for an optional
// config.yaml instead. Callers may layer flags on top with Set before Decode.
func Open(configPath string) (*viper.Viper, error) {
	v := New()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
		return v, nil
	}

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/intent-service/")
	v.AddConfigPath("$HOME/.intent-service")

	// Read config file if present (ignore error if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error occurred
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Only an explicit OTLP endpoint turns tracing on implicitly
	if cfg.OTELEndpoint != "" && !v.IsSet("otel_enabled") {
		cfg.OTELEnabled = true
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics_port must be different")
	}
	return c.ValidateModel()
}

// ValidateModel checks only the settings the classifier needs, for the CLI.
func (c *Config) ValidateModel() error {
	if c.Model == "" && !c.UseMockInference {
		return fmt.Errorf("model path is required when not using mock inference")
	}
	if c.Tokenizer == "" {
		return fmt.Errorf("tokenizer path is required")
	}
	if c.MaxSeqLen < 0 {
		return fmt.Errorf("invalid max_seq_len: %d", c.MaxSeqLen)
	}
	if c.MaxSeqLen > 0 && c.MaxSeqLen < 2 {
		return fmt.Errorf("max_seq_len must leave room for both boundary markers")
	}
	if c.PadID < 0 {
		return fmt.Errorf("invalid pad_id: %d", c.PadID)
	}
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("invalid intra_op_threads: %d", c.IntraOpThreads)
	}
	if c.CacheEnabled && c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive when the cache is enabled")
	}
	return nil
}
