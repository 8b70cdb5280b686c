package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/internal/telemetry"
	"github.com/termgate/termgate/pkg/api"
	"github.com/termgate/termgate/pkg/assist"
	"github.com/termgate/termgate/pkg/auth"
	"github.com/termgate/termgate/pkg/config"
	"github.com/termgate/termgate/pkg/metrics"
	"github.com/termgate/termgate/pkg/ratelimit"
	"github.com/termgate/termgate/pkg/sshconn"
	"github.com/termgate/termgate/pkg/store"
	"github.com/termgate/termgate/pkg/vault"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the TermGate server",
	Long: `Start the gateway: REST control endpoints, the websocket stream
channel, the SSH connection manager, and (when a provider key is
configured) the AI command assistant.

Configuration comes from the config file, environment variables, and
defaults; no config file is required when JWT_SECRET is set in the
environment.

Examples:
  # Start with environment configuration only
  JWT_SECRET=... termgate start

  # Start with a config file
  termgate start --config /etc/termgate/config.yaml

  # Override the listen port
  PORT=8080 termgate start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "termgate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "termgate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("TermGate starting",
		"version", Version,
		"log_level", cfg.Logging.Level,
		"config_source", getConfigSource(GetConfigFile()),
	)

	// Durable store
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()
	logger.Info("Store ready", "backend", string(cfg.Database.Type()))

	// Credential vault and token signer
	v, err := vault.New(cfg.Auth.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential vault: %w", err)
	}
	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:        cfg.Auth.JWTSecret,
		TokenDuration: cfg.Auth.TokenDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token signer: %w", err)
	}
	authSvc := auth.NewService(st, jwtSvc)

	// Metrics (optional)
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.Default()
		logger.Info("Metrics enabled", "path", "/metrics")
	}

	// SSH connection manager with its idle sweeper
	manager := sshconn.NewManager(sshconn.ManagerConfig{
		DialTimeout:       cfg.SSH.DialTimeout,
		KeepaliveInterval: cfg.SSH.KeepaliveInterval,
		ReconnectDelay:    cfg.SSH.ReconnectDelay,
		IdleTimeout:       cfg.SSH.IdleTimeout,
		SweepInterval:     cfg.SSH.SweepInterval,
		Metrics:           m,
	})
	defer manager.Stop()

	// AI assistant (optional)
	var assistSvc *assist.Service
	assistCfg := assist.Config{
		OpenAIKey:    cfg.Assist.OpenAIKey,
		AnthropicKey: cfg.Assist.AnthropicKey,
		Model:        cfg.Assist.Model,
	}
	if assistCfg.Enabled() {
		assistSvc, err = assist.NewService(assistCfg, st)
		if err != nil {
			return fmt.Errorf("failed to initialize assistant: %w", err)
		}
		logger.Info("Assistant enabled", "provider", assistSvc.ProviderName())
	} else {
		logger.Info("Assistant disabled (no provider key configured)")
	}

	// Per-IP rate limiters
	globalLimiter, err := ratelimit.New(ratelimit.Config{
		Tokens:   cfg.RateLimit.MaxRequests,
		Interval: cfg.RateLimit.Window(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defer func() { _ = globalLimiter.Close(context.Background()) }()

	authLimiter, err := ratelimit.New(ratelimit.Config{
		Tokens:   cfg.RateLimit.AuthMaxRequests,
		Interval: cfg.RateLimit.AuthWindow(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth rate limiter: %w", err)
	}
	defer func() { _ = authLimiter.Close(context.Background()) }()

	apiServer := api.NewServer(api.APIConfig{
		Port:       cfg.Server.Port,
		CORSOrigin: cfg.Server.CORSOrigin,
	}, api.Deps{
		Auth:          authSvc,
		Store:         st,
		Vault:         v,
		Manager:       manager,
		Assist:        assistSvc,
		GlobalLimiter: globalLimiter,
		AuthLimiter:   authLimiter,
		Metrics:       m,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", cfg.Server.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
