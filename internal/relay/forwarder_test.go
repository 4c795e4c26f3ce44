package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestForwarderTarget(t *testing.T) {
	f := NewForwarder("http://localhost:8000/", 0, testLogger())
	if f.Target() != "http://localhost:8000/api/workflows/send-mail" {
		t.Errorf("Target() = %q", f.Target())
	}
}

func TestForwarderPassesThrough(t *testing.T) {
	body := `{"to":"a@b.c","template":"blank_email","context":{"subject_line":"x"},"environment":"staging"}`

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SendMailPath {
			t.Errorf("Path = %q, want %q", r.URL.Path, SendMailPath)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		got, _ := io.ReadAll(r.Body)
		if string(got) != body {
			t.Errorf("backend body = %s, want %s", got, body)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"ok":true,"queued":true}`))
	}))
	defer backend.Close()

	r := chi.NewRouter()
	NewForwarder(backend.URL, time.Second, testLogger()).Mount(r)

	req := httptest.NewRequest("POST", RelayPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if rec.Body.String() != `{"ok":true,"queued":true}` {
		t.Errorf("Body = %s", rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
}

func TestForwarderBackendError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"ok":false,"detail":"SMTP down"}`))
	}))
	defer backend.Close()

	f := NewForwarder(backend.URL, time.Second, testLogger())
	req := httptest.NewRequest("POST", RelayPath, strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SMTP down") {
		t.Errorf("Body = %s, want backend detail", rec.Body.String())
	}
}

func TestForwarderNonJSONBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>Bad Gateway</html>"))
	}))
	defer backend.Close()

	f := NewForwarder(backend.URL, time.Second, testLogger())
	req := httptest.NewRequest("POST", RelayPath, strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", rec.Code)
	}
	if rec.Body.String() != "{}" {
		t.Errorf("Body = %q, want {}", rec.Body.String())
	}
}

func TestForwarderInvalidJSON(t *testing.T) {
	f := NewForwarder("http://127.0.0.1:1", time.Second, testLogger())

	req := httptest.NewRequest("POST", RelayPath, strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid JSON") {
		t.Errorf("Body = %s", rec.Body.String())
	}
}

func TestForwarderTooLarge(t *testing.T) {
	f := NewForwarder("http://127.0.0.1:1", time.Second, testLogger())

	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	req := httptest.NewRequest("POST", RelayPath, bytes.NewReader(big))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Status = %d, want 413", rec.Code)
	}
}

func TestForwarderBackendDown(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := backend.URL
	backend.Close()

	f := NewForwarder(url, time.Second, testLogger())
	req := httptest.NewRequest("POST", RelayPath, strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "detail") {
		t.Errorf("Body = %s, want detail", rec.Body.String())
	}
}

func TestClientThroughForwarder(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"SMTP down"}`))
	}))
	defer backend.Close()

	r := chi.NewRouter()
	NewForwarder(backend.URL, time.Second, testLogger()).Mount(r)
	relaySrv := httptest.NewServer(r)
	defer relaySrv.Close()

	c := NewClient(relaySrv.URL+RelayPath, time.Second, testLogger())
	_, err := c.Send(context.Background(), testRequest())

	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("Send() error = %v, want *Error", err)
	}
	if re.StatusCode != http.StatusInternalServerError || re.Detail != "SMTP down" {
		t.Errorf("got %+v, want 500 / SMTP down", re)
	}
}
