package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/emailflow/internal/compose"
	"github.com/foxzi/emailflow/internal/config"
	"github.com/foxzi/emailflow/internal/ipfilter"
	"github.com/foxzi/emailflow/internal/metrics"
	"github.com/foxzi/emailflow/internal/notify"
	"github.com/foxzi/emailflow/internal/relay"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	composer   *compose.Composer
	queue      *notify.Queue
	forwarder  *relay.Forwarder
	ipFilter   *ipfilter.Filter
	config     *config.ServerConfig
	version    string
	logger     *slog.Logger
	startTime  time.Time
}

// ServerOptions contains options for creating an API server
type ServerOptions struct {
	Composer      *compose.Composer
	Notifications *notify.Queue
	Forwarder     *relay.Forwarder // nil leaves the relay endpoint unmounted
	IPFilter      *ipfilter.Filter // nil allows all clients
	Config        *config.ServerConfig
	Version       string
	Logger        *slog.Logger
}

// NewServer creates a new API server
func NewServer(c *compose.Composer, q *notify.Queue, fwd *relay.Forwarder, cfg *config.ServerConfig, version string, logger *slog.Logger) *Server {
	return NewServerWithOptions(ServerOptions{
		Composer:      c,
		Notifications: q,
		Forwarder:     fwd,
		Config:        cfg,
		Version:       version,
		Logger:        logger,
	})
}

// NewServerWithOptions creates a new API server with all options
func NewServerWithOptions(opts ServerOptions) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		composer:  opts.Composer,
		queue:     opts.Notifications,
		forwarder: opts.Forwarder,
		ipFilter:  opts.IPFilter,
		config:    opts.Config,
		version:   opts.Version,
		logger:    opts.Logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	if s.ipFilter != nil {
		s.router.Use(s.ipFilter.Middleware)
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	s.router.Get("/health", s.handleHealth)

	if s.forwarder != nil {
		s.forwarder.Mount(s.router)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/templates", s.handleTemplates)

		r.Get("/composition", s.handleGetComposition)
		r.Patch("/composition", s.handleUpdateComposition)
		r.Post("/composition/format", s.handleFormat)
		r.Post("/composition/send", s.handleSend)

		r.Post("/draft", s.handleSaveDraft)
		r.Post("/draft/load", s.handleLoadDraft)

		r.Get("/notifications", s.handleNotifications)
		r.Delete("/notifications/{id}", s.handleDismissNotification)
	})
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
