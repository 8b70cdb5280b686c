package config

import (
	"strings"
	"time"
)

// Default values for every tunable. The short names match the
// conventional environment variables where one exists.
const (
	DefaultPort            = 5000
	DefaultShutdownTimeout = 30 * time.Second
	DefaultTokenDuration   = 7 * 24 * time.Hour

	DefaultRateLimitMaxRequests     = 100
	DefaultRateLimitWindowMS        = 900000
	DefaultRateLimitAuthMaxRequests = 5
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
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
	cfg.Database.ApplyDefaults()
	applyAuthDefaults(&cfg.Auth)
	applyRateLimitDefaults(&cfg.RateLimit)
	applySSHDefaults(&cfg.SSH)
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

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// applyAuthDefaults fills auth defaults. The credential encryption key
// falls back to the JWT secret so a single-secret deployment works out
// of the box.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = cfg.JWTSecret
	}
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = DefaultTokenDuration
	}
}

func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = DefaultRateLimitMaxRequests
	}
	if cfg.WindowMS == 0 {
		cfg.WindowMS = DefaultRateLimitWindowMS
	}
	if cfg.AuthMaxRequests == 0 {
		cfg.AuthMaxRequests = DefaultRateLimitAuthMaxRequests
	}
	if cfg.AuthWindowMS == 0 {
		cfg.AuthWindowMS = cfg.WindowMS
	}
}

func applySSHDefaults(cfg *SSHConfig) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = 60 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}
}

// GetDefaultConfig returns a configuration populated entirely from defaults.
// The JWT secret has no default and must be supplied before the config
// passes validation.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
