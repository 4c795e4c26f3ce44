package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foxzi/emailflow/internal/compose"
	"github.com/foxzi/emailflow/internal/config"
	"github.com/foxzi/emailflow/internal/draft"
	"github.com/foxzi/emailflow/internal/echo"
	"github.com/foxzi/emailflow/internal/ipfilter"
	"github.com/foxzi/emailflow/internal/notify"
	"github.com/foxzi/emailflow/internal/relay"
)

type testEnv struct {
	server  *Server
	queue   *notify.Queue
	backend *httptest.Server
	api     *httptest.Server
}

// setupTestServer wires the API to a real relay client, forwarder and echo
// backend. failDetail makes the backend reject every submission.
func setupTestServer(t *testing.T, failDetail string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var opts []echo.Option
	opts = append(opts, echo.WithLogger(logger))
	if failDetail != "" {
		opts = append(opts, echo.WithFailDetail(failDetail))
	}
	backend := httptest.NewServer(echo.New("staging", opts...).Router())
	t.Cleanup(backend.Close)

	env := &testEnv{backend: backend}

	// The relay client posts to the API server's own forwarder, so the
	// listener has to exist before the composer is built.
	mux := http.NewServeMux()
	env.api = httptest.NewServer(mux)
	t.Cleanup(env.api.Close)

	env.queue = notify.New(notify.WithLogger(logger))
	t.Cleanup(env.queue.Close)

	store := draft.NewStore(draft.NewMemorySlot(), "", logger)
	client := relay.NewClient(env.api.URL+relay.RelayPath, time.Second, logger)
	composer := compose.New(client, store, env.queue, compose.Settings{
		Sender:       "Medbuddy <info@medbuddyafrica.com>",
		WebsiteURL:   "https://medbuddyafrica.com",
		ReferralPath: "/app/referrals",
		Environment:  "staging",
	}, compose.WithLogger(logger))

	fwd := relay.NewForwarder(backend.URL, time.Second, logger)
	env.server = NewServer(composer, env.queue, fwd, &config.ServerConfig{ListenAddr: ":0"}, "test", logger)
	mux.Handle("/", env.server.Handler())

	return env
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func fillComposition(t *testing.T, s *Server) {
	t.Helper()
	w := do(t, s, "PATCH", "/api/v1/composition",
		`{"recipient":"user@example.com","subject":"Hello","body":"Hi","template":"Weekly Newsletter","track_opens":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH status = %d, body: %s", w.Code, w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t, "")

	w := do(t, env.server, "GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("Status = %q, want %q", resp.Status, "ok")
	}
	if resp.Version != "test" {
		t.Errorf("Version = %q, want test", resp.Version)
	}
}

func TestTemplatesEndpoint(t *testing.T) {
	env := setupTestServer(t, "")

	w := do(t, env.server, "GET", "/api/v1/templates", "")

	var resp TemplatesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Templates) != 4 || resp.Templates[0] != draft.DefaultTemplate {
		t.Errorf("Templates = %v", resp.Templates)
	}
	if len(resp.Formats) != 6 {
		t.Errorf("Formats = %v", resp.Formats)
	}
}

func TestGetComposition(t *testing.T) {
	env := setupTestServer(t, "")

	w := do(t, env.server, "GET", "/api/v1/composition", "")

	var snap compose.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if snap.Fields != draft.Default() {
		t.Errorf("Fields = %+v, want defaults", snap.Fields)
	}
	if snap.State != compose.StateIdle || snap.Busy || snap.CanSubmit {
		t.Errorf("Snapshot = %+v", snap)
	}
}

func TestUpdateComposition(t *testing.T) {
	env := setupTestServer(t, "")

	w := do(t, env.server, "PATCH", "/api/v1/composition",
		`{"recipient":"a@b.c","subject":"s","body":"b","track_clicks":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body: %s", w.Code, w.Body.String())
	}

	var snap compose.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !snap.CanSubmit {
		t.Error("CanSubmit = false after filling required fields")
	}
	if snap.Fields.TrackClicks {
		t.Error("TrackClicks = true, want false")
	}
}

func TestUpdateCompositionErrors(t *testing.T) {
	env := setupTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{invalid}`},
		{"unknown field", `{"cc":"x"}`},
		{"unknown template", `{"template":"Holiday Sale"}`},
		{"number value", `{"subject":5}`},
		{"bad bool", `{"track_opens":"sometimes"}`},
		{"null body", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, env.server, "PATCH", "/api/v1/composition", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestUpdateCompositionAllOrNothing(t *testing.T) {
	env := setupTestServer(t, "")

	// "body" sorts before "template", so it would be applied first
	w := do(t, env.server, "PATCH", "/api/v1/composition",
		`{"body":"new body","subject":"new subject","template":"Holiday Sale"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	got := env.server.composer.Fields()
	if got.Body == "new body" || got.Subject == "new subject" {
		t.Errorf("Fields() = %+v, want unchanged after rejected update", got)
	}
}

func TestFormatEndpoint(t *testing.T) {
	env := setupTestServer(t, "")
	do(t, env.server, "PATCH", "/api/v1/composition", `{"body":"hello world"}`)

	w := do(t, env.server, "POST", "/api/v1/composition/format",
		`{"kind":"link","selection_start":6,"selection_end":11}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp FormatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	want := "hello [world](https://example.com)"
	if resp.Body != want {
		t.Errorf("Body = %q, want %q", resp.Body, want)
	}
	if resp.Cursor != len([]rune(want)) {
		t.Errorf("Cursor = %d, want %d", resp.Cursor, len([]rune(want)))
	}

	w = do(t, env.server, "POST", "/api/v1/composition/format", `{"kind":"strike"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind Status = %d, want 400", w.Code)
	}
}

func TestSendEndpoint(t *testing.T) {
	env := setupTestServer(t, "")
	fillComposition(t, env.server)

	w := do(t, env.server, "POST", "/api/v1/composition/send", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp SendResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.StatusMessage != compose.StatusQueued {
		t.Errorf("StatusMessage = %q, want %q", resp.StatusMessage, compose.StatusQueued)
	}
	if resp.State != compose.StateIdle {
		t.Errorf("State = %q, want idle", resp.State)
	}

	list := env.queue.List()
	if len(list) != 1 || list[0].Kind != notify.KindSuccess {
		t.Errorf("notifications = %+v, want one success", list)
	}
}

func TestSendEndpointValidation(t *testing.T) {
	env := setupTestServer(t, "")
	do(t, env.server, "PATCH", "/api/v1/composition", `{"recipient":"a@b.c"}`)

	w := do(t, env.server, "POST", "/api/v1/composition/send", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Status = %d, want 422", w.Code)
	}

	var resp SendResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.StatusMessage != compose.StatusInvalid {
		t.Errorf("StatusMessage = %q", resp.StatusMessage)
	}
	if len(resp.MissingFields) != 2 {
		t.Errorf("MissingFields = %v, want subject and body", resp.MissingFields)
	}
	if env.queue.Len() != 0 {
		t.Errorf("notifications = %d, want 0", env.queue.Len())
	}
}

func TestSendEndpointRejected(t *testing.T) {
	env := setupTestServer(t, "SMTP down")
	fillComposition(t, env.server)

	w := do(t, env.server, "POST", "/api/v1/composition/send", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Status = %d, want 502", w.Code)
	}

	var resp SendResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error != "SMTP down" || resp.BackendStatus != http.StatusInternalServerError {
		t.Errorf("resp = %+v", resp)
	}
	if resp.StatusMessage != "Error: SMTP down" {
		t.Errorf("StatusMessage = %q", resp.StatusMessage)
	}

	list := env.queue.List()
	if len(list) != 1 || list[0].Kind != notify.KindError || list[0].Title != "Failed" {
		t.Errorf("notifications = %+v, want one failure", list)
	}
}

func TestSendEndpointBackendDown(t *testing.T) {
	env := setupTestServer(t, "")
	env.backend.Close()
	fillComposition(t, env.server)

	w := do(t, env.server, "POST", "/api/v1/composition/send", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Status = %d, want 502", w.Code)
	}

	var resp SendResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	// The forwarder answers 502 itself, so the client sees an HTTP rejection
	if resp.BackendStatus != http.StatusBadGateway {
		t.Errorf("BackendStatus = %d, want 502", resp.BackendStatus)
	}
}

func TestDraftEndpoints(t *testing.T) {
	env := setupTestServer(t, "")
	fillComposition(t, env.server)

	w := do(t, env.server, "POST", "/api/v1/draft", "")
	if w.Code != http.StatusOK {
		t.Fatalf("save Status = %d", w.Code)
	}
	var snap compose.Snapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.StatusMessage != compose.StatusDraftSaved {
		t.Errorf("StatusMessage = %q", snap.StatusMessage)
	}

	do(t, env.server, "PATCH", "/api/v1/composition", `{"subject":"changed"}`)

	w = do(t, env.server, "POST", "/api/v1/draft/load", "")
	if w.Code != http.StatusOK {
		t.Fatalf("load Status = %d", w.Code)
	}
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.Fields.Subject != "Hello" {
		t.Errorf("Subject = %q, want saved value", snap.Fields.Subject)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	env := setupTestServer(t, "")
	n := env.queue.Show(notify.KindInfo, "Heads up", "Something happened", time.Minute)

	w := do(t, env.server, "GET", "/api/v1/notifications", "")
	var resp NotificationsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(resp.Notifications))
	}
	got := resp.Notifications[0]
	if got.ID != n.ID || got.Title != "Heads up" || got.LifetimeMs != 60000 {
		t.Errorf("notification = %+v", got)
	}

	w = do(t, env.server, "DELETE", "/api/v1/notifications/"+n.ID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want 204", w.Code)
	}
	if env.queue.Len() != 0 {
		t.Error("notification not dismissed")
	}

	w = do(t, env.server, "DELETE", "/api/v1/notifications/"+n.ID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("second dismiss Status = %d, want 204", w.Code)
	}
}

func TestRelayEndpointMounted(t *testing.T) {
	env := setupTestServer(t, "")

	w := do(t, env.server, "POST", relay.RelayPath, `{"to":"a@b.c","environment":"qa"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp echo.Accepted
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Environment != "qa" || !resp.Queued {
		t.Errorf("resp = %+v", resp)
	}
}

func TestIPFilter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	filter, err := ipfilter.Parse([]string{"10.0.0.0/8"}, logger)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	q := notify.New(notify.WithLogger(logger))
	defer q.Close()

	s := NewServerWithOptions(ServerOptions{
		Composer:      compose.New(nil, draft.NewStore(draft.NewMemorySlot(), "", logger), q, compose.Settings{}),
		Notifications: q,
		IPFilter:      filter,
		Config:        &config.ServerConfig{},
		Logger:        logger,
	})

	tests := []struct {
		remoteAddr string
		want       int
	}{
		{"10.1.2.3:5555", http.StatusOK},
		{"192.0.2.1:1234", http.StatusForbidden},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = tt.remoteAddr
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		if w.Code != tt.want {
			t.Errorf("%s: Status = %d, want %d", tt.remoteAddr, w.Code, tt.want)
		}
	}
}
