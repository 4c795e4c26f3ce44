package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/emailflow/internal/metrics"
)

// Forwarder is the intermediary endpoint. It passes each POST body through
// to the backend send-mail entry point and answers with the backend's status
// and JSON body. Nothing is cached.
type Forwarder struct {
	target     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewForwarder creates a forwarder for the backend at backendBaseURL.
// A zero timeout means 30 seconds.
func NewForwarder(backendBaseURL string, timeout time.Duration, logger *slog.Logger) *Forwarder {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		target: strings.TrimRight(backendBaseURL, "/") + SendMailPath,
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Target returns the backend URL requests are forwarded to
func (f *Forwarder) Target() string {
	return f.target
}

// Mount registers the endpoint on r
func (f *Forwarder) Mount(r chi.Router) {
	r.Post(RelayPath, f.ServeHTTP)
}

// ServeHTTP forwards one request
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if !json.Valid(body) {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, f.target, bytes.NewReader(body))
	if err != nil {
		f.logger.Error("failed to build backend request", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to build backend request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRelayForward("transport_error", time.Since(start).Seconds())
		f.logger.Warn("backend unreachable", "target", f.target, "error", err)
		writeDetail(w, http.StatusBadGateway, err.Error())
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.ObserveRelayForward(strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil || !json.Valid(respBody) {
		respBody = []byte("{}")
	}

	f.logger.Info("forwarded submission",
		"target", f.target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.StatusCode)
	w.Write(respBody)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
