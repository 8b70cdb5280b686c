package api

import "time"

// APIConfig configures the gateway HTTP server.
type APIConfig struct {
	// Port is the HTTP listen port.
	// Default: 5000
	Port int

	// CORSOrigin is the allowed browser origin. Empty allows any origin.
	CORSOrigin string

	// ReadHeaderTimeout bounds how long a client may take to send headers.
	// Default: 10s
	ReadHeaderTimeout time.Duration

	// IdleTimeout is the keep-alive idle limit for control requests.
	// Default: 60s
	IdleTimeout time.Duration

	// RequestTimeout bounds each control request. The stream channel is
	// exempt; it lives until either side closes it.
	// Default: 30s
	RequestTimeout time.Duration
}

// applyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 5000
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}
