package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzi/emailflow/internal/ipfilter"
)

// Server serves Prometheus metrics over HTTP
type Server struct {
	httpServer *http.Server
	metrics    *Metrics
	addr       string
	path       string
	ipFilter   *ipfilter.Filter
	logger     *slog.Logger
}

// NewServer creates a new metrics HTTP server
func NewServer(m *Metrics, addr, path string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if path == "" {
		path = "/metrics"
	}

	return &Server{
		metrics: m,
		addr:    addr,
		path:    path,
		logger:  logger,
	}
}

// SetIPFilter restricts the server to the filter's networks
func (s *Server) SetIPFilter(f *ipfilter.Filter) {
	s.ipFilter = f
}

// Handler returns the HTTP handler serving the metrics and health endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(s.path, promhttp.HandlerFor(
		s.metrics.Registry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.ipFilter != nil {
		return s.ipFilter.Middleware(mux)
	}
	return mux
}

// ListenAndServe starts the metrics HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting metrics server", "addr", s.addr, "path", s.path)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}

// RunSystemUpdater refreshes the uptime, goroutine and storage gauges
// every interval until ctx is done. storagePath may be empty.
func (m *Metrics) RunSystemUpdater(ctx context.Context, storagePath string, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.collectSystemMetrics(start, storagePath)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Metrics) collectSystemMetrics(start time.Time, storagePath string) {
	m.UptimeSeconds.Set(time.Since(start).Seconds())
	m.Goroutines.Set(float64(runtime.NumGoroutine()))

	if storagePath != "" {
		if info, err := os.Stat(storagePath); err == nil {
			m.StorageUsedBytes.Set(float64(info.Size()))
		}
	}
}
