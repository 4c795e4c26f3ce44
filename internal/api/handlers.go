package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/emailflow/internal/compose"
	"github.com/foxzi/emailflow/internal/draft"
	"github.com/foxzi/emailflow/internal/notify"
	"github.com/foxzi/emailflow/internal/relay"
	"github.com/foxzi/emailflow/internal/richtext"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	Notifications int    `json:"notifications"`
}

// TemplatesResponse is the response for GET /api/v1/templates
type TemplatesResponse struct {
	Templates []string        `json:"templates"`
	Formats   []richtext.Kind `json:"formats"`
}

// FormatRequest is the request body for POST /composition/format
type FormatRequest struct {
	Kind           string `json:"kind"`
	SelectionStart int    `json:"selection_start"`
	SelectionEnd   int    `json:"selection_end"`
}

// FormatResponse is the response for POST /composition/format
type FormatResponse struct {
	Body   string `json:"body"`
	Cursor int    `json:"cursor"`
}

// SendResponse is the response for POST /composition/send
type SendResponse struct {
	State         compose.State `json:"state"`
	StatusMessage string        `json:"status_message"`
	Error         string        `json:"error,omitempty"`
	MissingFields []string      `json:"missing_fields,omitempty"`
	BackendStatus int           `json:"backend_status,omitempty"`
}

// NotificationsResponse is the response for GET /notifications
type NotificationsResponse struct {
	Notifications []NotificationView `json:"notifications"`
}

// NotificationView is a notification with its expiry
type NotificationView struct {
	notify.Notification
	LifetimeMs int64     `json:"lifetime_ms"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.version,
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Notifications: s.queue.Len(),
	})
}

// handleTemplates handles GET /api/v1/templates
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, TemplatesResponse{
		Templates: draft.Templates,
		Formats:   richtext.Kinds,
	})
}

// handleGetComposition handles GET /api/v1/composition
func (s *Server) handleGetComposition(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.composer.Snapshot())
}

// handleUpdateComposition handles PATCH /api/v1/composition.
// The update is all or nothing: a 400 leaves the composition unchanged.
func (s *Server) handleUpdateComposition(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req == nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	values := make(map[string]string, len(req))
	for name, raw := range req {
		switch v := raw.(type) {
		case string:
			values[name] = v
		case bool:
			values[name] = strconv.FormatBool(v)
		default:
			s.sendError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a string or boolean", name))
			return
		}
	}

	if err := s.composer.UpdateFields(values); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, s.composer.Snapshot())
}

// handleFormat handles POST /api/v1/composition/format
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var req FormatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	kind, err := richtext.ParseKind(req.Kind)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.composer.Format(kind, richtext.Selection{Start: req.SelectionStart, End: req.SelectionEnd})
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, FormatResponse{
		Body:   res.Text,
		Cursor: res.Cursor.Start,
	})
}

// handleSend handles POST /api/v1/composition/send.
// An issued relay call runs to completion even if the client goes away.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	err := s.composer.Submit(context.WithoutCancel(r.Context()))

	resp := SendResponse{
		State:         s.composer.State(),
		StatusMessage: s.composer.StatusMessage(),
	}

	var ve *compose.ValidationError
	var re *relay.Error
	switch {
	case err == nil:
		s.sendJSON(w, http.StatusOK, resp)
	case errors.Is(err, compose.ErrSubmitInProgress):
		resp.Error = err.Error()
		s.sendJSON(w, http.StatusConflict, resp)
	case errors.As(err, &ve):
		resp.Error = err.Error()
		resp.MissingFields = ve.Fields
		s.sendJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &re):
		resp.Error = re.Detail
		resp.BackendStatus = re.StatusCode
		s.sendJSON(w, http.StatusBadGateway, resp)
	default:
		resp.Error = err.Error()
		s.sendJSON(w, http.StatusBadGateway, resp)
	}
}

// handleSaveDraft handles POST /api/v1/draft
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.composer.SaveDraft(); err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to save draft")
		return
	}
	s.sendJSON(w, http.StatusOK, s.composer.Snapshot())
}

// handleLoadDraft handles POST /api/v1/draft/load
func (s *Server) handleLoadDraft(w http.ResponseWriter, r *http.Request) {
	s.composer.LoadDraft()
	s.sendJSON(w, http.StatusOK, s.composer.Snapshot())
}

// handleNotifications handles GET /api/v1/notifications
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list := s.queue.List()
	views := make([]NotificationView, len(list))
	for i, n := range list {
		views[i] = NotificationView{
			Notification: n,
			LifetimeMs:   n.Lifetime.Milliseconds(),
			ExpiresAt:    n.ExpiresAt(),
		}
	}
	s.sendJSON(w, http.StatusOK, NotificationsResponse{Notifications: views})
}

// handleDismissNotification handles DELETE /api/v1/notifications/{id}
func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.queue.Dismiss(id) {
		s.logger.Debug("notification dismissed", "id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
