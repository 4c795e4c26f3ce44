package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/emailflow/internal/api"
	"github.com/foxzi/emailflow/internal/compose"
	"github.com/foxzi/emailflow/internal/config"
	"github.com/foxzi/emailflow/internal/draft"
	"github.com/foxzi/emailflow/internal/ipfilter"
	"github.com/foxzi/emailflow/internal/metrics"
	"github.com/foxzi/emailflow/internal/notify"
	"github.com/foxzi/emailflow/internal/relay"
)

// App is the main application
type App struct {
	config        *config.Config
	slot          *draft.BoltSlot
	queue         *notify.Queue
	composer      *compose.Composer
	apiServer     *api.Server
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	logger        *slog.Logger
}

// New creates a new application and loads the stored draft into the composer
func New(cfg *config.Config, version string) (*App, error) {
	return NewWithLogger(cfg, version, SetupLogger(cfg.Logging, os.Stdout))
}

// NewWithLogger is New with a caller-supplied logger
func NewWithLogger(cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	// Metrics go first so every component can record through the global
	var m *metrics.Metrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)
		metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logger.With("component", "metrics"))

		filter, err := ipfilter.Parse(cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		if err != nil {
			return nil, fmt.Errorf("invalid metrics.allowed_ips: %w", err)
		}
		if filter.Enabled() {
			metricsServer.SetIPFilter(filter)
		}
	}

	apiFilter, err := ipfilter.Parse(cfg.Server.AllowedIPs, logger.With("component", "api"))
	if err != nil {
		return nil, fmt.Errorf("invalid server.allowed_ips: %w", err)
	}

	slot, err := draft.OpenBoltSlot(cfg.Draft.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open draft storage: %w", err)
	}

	queue := notify.New(
		notify.WithDefaultLifetime(cfg.Notifications.DefaultLifetime),
		notify.WithLogger(logger.With("component", "notify")),
	)

	store := draft.NewStore(slot, cfg.Draft.Key, logger.With("component", "draft"))
	client := relay.NewClient(cfg.Relay.Endpoint, cfg.Relay.Timeout, logger.With("component", "relay_client"))

	composer := compose.New(client, store, queue, compose.Settings{
		Sender:       cfg.Composer.Sender,
		WebsiteURL:   cfg.Composer.WebsiteURL,
		ReferralPath: cfg.Composer.ReferralPath,
		Environment:  cfg.Composer.Environment,
	}, compose.WithLogger(logger))
	composer.LoadDraft()

	forwarder := relay.NewForwarder(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger.With("component", "relay"))

	apiServer := api.NewServerWithOptions(api.ServerOptions{
		Composer:      composer,
		Notifications: queue,
		Forwarder:     forwarder,
		IPFilter:      apiFilter,
		Config:        &cfg.Server,
		Version:       version,
		Logger:        logger.With("component", "api"),
	})

	return &App{
		config:        cfg,
		slot:          slot,
		queue:         queue,
		composer:      composer,
		apiServer:     apiServer,
		metrics:       m,
		metricsServer: metricsServer,
		logger:        logger,
	}, nil
}

// Composer returns the application's composer
func (a *App) Composer() *compose.Composer {
	return a.composer
}

// Notifications returns the application's notification queue
func (a *App) Notifications() *notify.Queue {
	return a.queue
}

// Handler returns the API router
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting emailflow",
		"api_addr", a.config.Server.ListenAddr,
		"backend", a.config.Backend.BaseURL,
		"relay_endpoint", a.config.Relay.Endpoint,
		"environment", a.config.Composer.Environment,
		"draft_path", a.config.Draft.Path,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Channel to collect errors
	errCh := make(chan error, 2)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go a.metrics.RunSystemUpdater(ctx, a.config.Draft.Path, a.config.Metrics.FlushInterval)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	// Graceful shutdown
	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	err := a.Close()

	a.logger.Info("shutdown complete")
	return err
}

// Close releases the notification timers and the draft storage
func (a *App) Close() error {
	a.queue.Close()
	if err := a.slot.Close(); err != nil {
		a.logger.Error("draft storage close error", "error", err)
		return fmt.Errorf("failed to close draft storage: %w", err)
	}
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
