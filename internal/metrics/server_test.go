package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/foxzi/emailflow/internal/ipfilter"
)

func TestServerHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()
	m.SubmissionsTotal.WithLabelValues("success").Inc()

	s := NewServer(m, "", "", logger)
	if s.addr != ":9090" {
		t.Errorf("addr = %q, want :9090", s.addr)
	}
	if s.path != "/metrics" {
		t.Errorf("path = %q, want /metrics", s.path)
	}

	t.Run("metrics", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), `emailflow_submissions_total{outcome="success"} 1`) {
			t.Errorf("metrics output missing submission counter:\n%s", rec.Body.String())
		}
	})

	t.Run("health", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
		}
		if rec.Body.String() != "OK" {
			t.Errorf("Body = %q, want OK", rec.Body.String())
		}
	})
}

func TestCollectSystemMetrics(t *testing.T) {
	m := New()

	path := filepath.Join(t.TempDir(), "drafts.db")
	if err := os.WriteFile(path, make([]byte, 128), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	m.collectSystemMetrics(time.Now().Add(-time.Minute), path)

	if got := testutil.ToFloat64(m.StorageUsedBytes); got != 128 {
		t.Errorf("StorageUsedBytes = %v, want 128", got)
	}
	if got := testutil.ToFloat64(m.UptimeSeconds); got < 60 {
		t.Errorf("UptimeSeconds = %v, want >= 60", got)
	}
	if got := testutil.ToFloat64(m.Goroutines); got < 1 {
		t.Errorf("Goroutines = %v, want >= 1", got)
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(New(), ":0", "/metrics", logger)

	if err := s.Shutdown(t.Context()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServerIPFilter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	filter, err := ipfilter.Parse([]string{"127.0.0.1"}, logger)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	s := NewServer(New(), "", "", logger)
	s.SetIPFilter(filter)

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
}
