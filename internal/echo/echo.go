// Package echo is a stand-in for the backend workflow service. It accepts
// submissions and echoes them back without delivering anything.
package echo

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/foxzi/emailflow/internal/relay"
)

// Backend serves the send-mail entry point
type Backend struct {
	environment string
	failDetail  string
	logger      *slog.Logger
}

// Option configures a Backend
type Option func(*Backend)

// WithFailDetail makes every submission fail with HTTP 500 and detail
func WithFailDetail(detail string) Option {
	return func(b *Backend) {
		b.failDetail = detail
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a backend. environment is reported when a request has none.
func New(environment string, opts ...Option) *Backend {
	b := &Backend{
		environment: environment,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "echo")
	return b
}

// Router returns the backend's HTTP routes
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post(relay.SendMailPath, b.handleSendMail)
	return r
}

type submission struct {
	To          string         `json:"to"`
	From        string         `json:"from"`
	Template    string         `json:"template"`
	Context     map[string]any `json:"context"`
	Environment string         `json:"environment"`
}

// Echo is the body of an accepted submission
type Echo struct {
	Template    string         `json:"template"`
	To          string         `json:"to"`
	From        string         `json:"from"`
	Context     map[string]any `json:"context"`
	Recipient   string         `json:"recipient"`
	Environment string         `json:"environment"`
}

// Accepted is the success response
type Accepted struct {
	OK          bool   `json:"ok"`
	Queued      bool   `json:"queued"`
	Environment string `json:"environment"`
	ID          string `json:"id"`
	Echo        Echo   `json:"echo"`
}

type failure struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

func (b *Backend) handleSendMail(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		sendJSON(w, http.StatusBadRequest, failure{Detail: "Failed to read request body"})
		return
	}

	var sub submission
	if err := json.Unmarshal(body, &sub); err != nil {
		sendJSON(w, http.StatusBadRequest, failure{Detail: "Invalid JSON"})
		return
	}

	if b.failDetail != "" {
		b.logger.Info("rejecting submission", "to", sub.To, "detail", b.failDetail)
		sendJSON(w, http.StatusInternalServerError, failure{Detail: b.failDetail})
		return
	}

	env := sub.Environment
	if env == "" {
		env = b.environment
	}

	recipient, _ := sub.Context["recipient"].(string)
	if recipient == "" {
		recipient = sub.To
	}

	resp := Accepted{
		OK:          true,
		Queued:      true,
		Environment: env,
		ID:          strings.ReplaceAll(uuid.New().String(), "-", ""),
		Echo: Echo{
			Template:    sub.Template,
			To:          sub.To,
			From:        sub.From,
			Context:     sub.Context,
			Recipient:   recipient,
			Environment: env,
		},
	}

	b.logger.Info("submission echoed",
		"id", resp.ID,
		"template", sub.Template,
		"environment", env,
		"request_id", middleware.GetReqID(r.Context()),
	)

	sendJSON(w, http.StatusOK, resp)
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
