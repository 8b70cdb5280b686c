// Package config loads the gateway configuration from file, environment,
// and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/termgate/termgate/pkg/store"
)

// Config represents the TermGate gateway configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (TERMGATE_* plus the short aliases below)
//  2. Configuration file (YAML)
//  3. Default values
//
// A handful of settings also accept short, unprefixed environment names
// for compatibility with container platforms: PORT, CORS_ORIGIN,
// JWT_SECRET, ENCRYPTION_KEY, DATABASE_URL, RATE_LIMIT_MAX_REQUESTS,
// RATE_LIMIT_WINDOW_MS, OPENAI_API_KEY, and ANTHROPIC_API_KEY.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Server configures the HTTP listener
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures gateway persistence (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Auth configures token signing and credential encryption
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// RateLimit configures the per-IP request limiters
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// SSH configures connection lifecycle timings
	SSH SSHConfig `mapstructure:"ssh" yaml:"ssh"`

	// Assist configures the AI command assistant backends
	Assist AssistConfig `mapstructure:"assist" yaml:"assist"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ServerConfig configures the gateway HTTP listener.
type ServerConfig struct {
	// Port is the HTTP listen port
	// Default: 5000
	// Override: TERMGATE_SERVER_PORT or PORT
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// CORSOrigin is the allowed cross-origin origin for browser clients.
	// Empty allows any origin (development default).
	// Override: TERMGATE_SERVER_CORS_ORIGIN or CORS_ORIGIN
	CORSOrigin string `mapstructure:"cors_origin" yaml:"cors_origin,omitempty"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// AuthConfig configures token signing and credential encryption.
type AuthConfig struct {
	// JWTSecret signs bearer tokens (HS256). Required, minimum 32 bytes.
	// Override: TERMGATE_AUTH_JWT_SECRET or JWT_SECRET
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32" yaml:"jwt_secret,omitempty"`

	// EncryptionKey encrypts stored SSH credentials at rest.
	// Defaults to JWTSecret when unset.
	// Override: TERMGATE_AUTH_ENCRYPTION_KEY or ENCRYPTION_KEY
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key,omitempty"`

	// TokenDuration is the bearer token lifetime
	// Default: 168h (7 days)
	TokenDuration time.Duration `mapstructure:"token_duration" validate:"omitempty,gt=0" yaml:"token_duration"`
}

// RateLimitConfig configures the per-IP request limiters.
// Windows are expressed in milliseconds to match the conventional
// RATE_LIMIT_WINDOW_MS environment variable.
type RateLimitConfig struct {
	// MaxRequests is the global per-IP request budget per window
	// Default: 100
	// Override: TERMGATE_RATE_LIMIT_MAX_REQUESTS or RATE_LIMIT_MAX_REQUESTS
	MaxRequests uint64 `mapstructure:"max_requests" validate:"omitempty,gt=0" yaml:"max_requests"`

	// WindowMS is the global limiter window in milliseconds
	// Default: 900000 (15 minutes)
	// Override: TERMGATE_RATE_LIMIT_WINDOW_MS or RATE_LIMIT_WINDOW_MS
	WindowMS int `mapstructure:"window_ms" validate:"omitempty,gt=0" yaml:"window_ms"`

	// AuthMaxRequests is the stricter per-IP budget for authentication
	// endpoints (register and login)
	// Default: 5
	AuthMaxRequests uint64 `mapstructure:"auth_max_requests" validate:"omitempty,gt=0" yaml:"auth_max_requests"`

	// AuthWindowMS is the auth limiter window in milliseconds
	// Default: 900000 (15 minutes)
	AuthWindowMS int `mapstructure:"auth_window_ms" validate:"omitempty,gt=0" yaml:"auth_window_ms"`
}

// Window returns the global limiter window as a duration.
func (c *RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}

// AuthWindow returns the auth limiter window as a duration.
func (c *RateLimitConfig) AuthWindow() time.Duration {
	return time.Duration(c.AuthWindowMS) * time.Millisecond
}

// SSHConfig configures SSH connection lifecycle timings.
type SSHConfig struct {
	// DialTimeout bounds the TCP and handshake phase of a connect
	// Default: 30s
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"omitempty,gt=0" yaml:"dial_timeout"`

	// KeepaliveInterval is the interval between keepalive requests
	// Default: 60s
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" validate:"omitempty,gt=0" yaml:"keepalive_interval"`

	// ReconnectDelay is the pause before the single automatic reconnect
	// attempt after an unexpected drop
	// Default: 5s
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" validate:"omitempty,gt=0" yaml:"reconnect_delay"`

	// IdleTimeout is how long a connection may sit without activity
	// before the sweeper closes it
	// Default: 30m
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"omitempty,gt=0" yaml:"idle_timeout"`

	// SweepInterval is how often the idle sweeper runs
	// Default: 60s
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"omitempty,gt=0" yaml:"sweep_interval"`
}

// AssistConfig configures the AI command assistant.
// The assistant is optional; with no API key configured the gateway runs
// without it and assistant requests return a diagnostic.
type AssistConfig struct {
	// OpenAIKey enables the OpenAI backend. Takes precedence when both
	// keys are set.
	// Override: TERMGATE_ASSIST_OPENAI_KEY or OPENAI_API_KEY
	OpenAIKey string `mapstructure:"openai_key" yaml:"openai_key,omitempty"`

	// AnthropicKey enables the Anthropic backend
	// Override: TERMGATE_ASSIST_ANTHROPIC_KEY or ANTHROPIC_API_KEY
	AnthropicKey string `mapstructure:"anthropic_key" yaml:"anthropic_key,omitempty"`

	// Model overrides the provider's default model name
	Model string `mapstructure:"model" yaml:"model,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
// When Enabled is true the gateway serves /metrics on the API port.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal even when no config file was found: bound environment
	// variables still contribute values.
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when an
// explicitly requested config file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file carries the JWT secret and any
	// assistant API keys.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// envBindings maps config keys to their environment variable names.
// The TERMGATE_-prefixed form always works; a handful of keys also accept
// a short unprefixed alias. Later names win only if earlier ones are unset.
var envBindings = map[string][]string{
	"logging.level":                {"TERMGATE_LOGGING_LEVEL"},
	"logging.format":               {"TERMGATE_LOGGING_FORMAT"},
	"logging.output":               {"TERMGATE_LOGGING_OUTPUT"},
	"telemetry.enabled":            {"TERMGATE_TELEMETRY_ENABLED"},
	"telemetry.endpoint":           {"TERMGATE_TELEMETRY_ENDPOINT"},
	"telemetry.insecure":           {"TERMGATE_TELEMETRY_INSECURE"},
	"telemetry.sample_rate":        {"TERMGATE_TELEMETRY_SAMPLE_RATE"},
	"telemetry.profiling.enabled":  {"TERMGATE_TELEMETRY_PROFILING_ENABLED"},
	"telemetry.profiling.endpoint": {"TERMGATE_TELEMETRY_PROFILING_ENDPOINT"},
	"server.port":                  {"TERMGATE_SERVER_PORT", "PORT"},
	"server.cors_origin":           {"TERMGATE_SERVER_CORS_ORIGIN", "CORS_ORIGIN"},
	"server.shutdown_timeout":      {"TERMGATE_SERVER_SHUTDOWN_TIMEOUT"},
	"database.url":                 {"TERMGATE_DATABASE_URL", "DATABASE_URL"},
	"auth.jwt_secret":              {"TERMGATE_AUTH_JWT_SECRET", "JWT_SECRET"},
	"auth.encryption_key":          {"TERMGATE_AUTH_ENCRYPTION_KEY", "ENCRYPTION_KEY"},
	"auth.token_duration":          {"TERMGATE_AUTH_TOKEN_DURATION"},
	"rate_limit.max_requests":      {"TERMGATE_RATE_LIMIT_MAX_REQUESTS", "RATE_LIMIT_MAX_REQUESTS"},
	"rate_limit.window_ms":         {"TERMGATE_RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_WINDOW_MS"},
	"rate_limit.auth_max_requests": {"TERMGATE_RATE_LIMIT_AUTH_MAX_REQUESTS"},
	"rate_limit.auth_window_ms":    {"TERMGATE_RATE_LIMIT_AUTH_WINDOW_MS"},
	"ssh.dial_timeout":             {"TERMGATE_SSH_DIAL_TIMEOUT"},
	"ssh.keepalive_interval":       {"TERMGATE_SSH_KEEPALIVE_INTERVAL"},
	"ssh.reconnect_delay":          {"TERMGATE_SSH_RECONNECT_DELAY"},
	"ssh.idle_timeout":             {"TERMGATE_SSH_IDLE_TIMEOUT"},
	"ssh.sweep_interval":           {"TERMGATE_SSH_SWEEP_INTERVAL"},
	"assist.openai_key":            {"TERMGATE_ASSIST_OPENAI_KEY", "OPENAI_API_KEY"},
	"assist.anthropic_key":         {"TERMGATE_ASSIST_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"},
	"assist.model":                 {"TERMGATE_ASSIST_MODEL"},
	"metrics.enabled":              {"TERMGATE_METRICS_ENABLED"},
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TERMGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings so environment values survive Unmarshal even
	// without a config file, and so the short aliases work.
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		_ = v.BindEnv(args...)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/termgate/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "termgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "termgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
