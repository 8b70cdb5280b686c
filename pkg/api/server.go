// Package api serves the gateway's control endpoints and the client
// stream channel over a single HTTP listener.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/assist"
	"github.com/termgate/termgate/pkg/auth"
	"github.com/termgate/termgate/pkg/metrics"
	"github.com/termgate/termgate/pkg/ratelimit"
	"github.com/termgate/termgate/pkg/sshconn"
	"github.com/termgate/termgate/pkg/store"
	"github.com/termgate/termgate/pkg/vault"
)

// Deps bundles the services the API layer dispatches into.
type Deps struct {
	Auth    *auth.Service
	Store   *store.GORMStore
	Vault   *vault.Vault
	Manager *sshconn.Manager

	// Assist may be nil when no provider key is configured; assistant
	// requests then return a diagnostic instead of a result.
	Assist *assist.Service

	GlobalLimiter *ratelimit.Limiter
	AuthLimiter   *ratelimit.Limiter

	// Metrics may be nil; every recording method is a no-op then.
	Metrics *metrics.Metrics
}

// Server is the gateway HTTP server: REST control endpoints, the /ws
// stream channel, /health, and optionally /metrics.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server         *http.Server
	config         APIConfig
	deps           Deps
	upgrader       websocket.Upgrader
	metricsHandler http.Handler
	shutdownOnce   sync.Once
}

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. Defaults are applied here so the server works correctly even
// when constructed directly in tests.
func NewServer(config APIConfig, deps Deps) *Server {
	config.applyDefaults()

	s := &Server{
		config: config,
		deps:   deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(config.CORSOrigin),
		},
	}
	if deps.Metrics != nil {
		s.metricsHandler = deps.Metrics.Handler()
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.newRouter(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		IdleTimeout:       config.IdleTimeout,
		// No global read/write timeouts: the stream channel at /ws is
		// long-lived. Control requests are bounded by the router's
		// per-request timeout middleware.
	}

	return s
}

// originChecker allows websocket handshakes from the configured origin.
// With no configured origin any origin is accepted, mirroring the CORS
// policy of the control endpoints.
func originChecker(origin string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if origin == "" {
			return true
		}
		got := r.Header.Get("Origin")
		return got == "" || got == origin
	}
}

// Start starts the HTTP server and blocks until the context is cancelled
// or an error occurs. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// Fresh context: the cancelled one would abort the drain
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
