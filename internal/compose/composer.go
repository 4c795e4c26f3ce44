// Package compose owns the email being composed and its submission lifecycle.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foxzi/emailflow/internal/draft"
	"github.com/foxzi/emailflow/internal/email"
	"github.com/foxzi/emailflow/internal/metrics"
	"github.com/foxzi/emailflow/internal/notify"
	"github.com/foxzi/emailflow/internal/relay"
	"github.com/foxzi/emailflow/internal/richtext"
)

// Toast lifetimes for submission outcomes
const (
	SuccessLifetime = 4000 * time.Millisecond
	FailureLifetime = 6000 * time.Millisecond
)

// Sender delivers a submission to the backend
type Sender interface {
	Send(ctx context.Context, req *relay.SubmissionRequest) (*relay.Response, error)
}

// DraftStore persists the composition between sessions
type DraftStore interface {
	Load() draft.Draft
	Save(d draft.Draft) error
}

// Notifier shows transient messages to the user
type Notifier interface {
	Show(kind notify.Kind, title, message string, lifetime time.Duration) notify.Notification
}

// Settings are the deployment values baked into every submission
type Settings struct {
	Sender       string
	WebsiteURL   string
	ReferralPath string
	Environment  string
}

// ReferralURL returns the referral tracking page URL
func (s Settings) ReferralURL() string {
	return strings.TrimRight(s.WebsiteURL, "/") + s.ReferralPath
}

// Snapshot is a consistent view of the composer
type Snapshot struct {
	Fields        draft.Draft `json:"fields"`
	State         State       `json:"state"`
	Busy          bool        `json:"busy"`
	CanSubmit     bool        `json:"can_submit"`
	StatusMessage string      `json:"status_message"`
}

// Composer holds the form fields and drives validation, draft persistence
// and submission.
type Composer struct {
	mu       sync.Mutex
	fields   draft.Draft
	state    State
	status   string
	relay    Sender
	store    DraftStore
	queue    Notifier
	settings Settings
	onChange func(from, to State)
	logger   *slog.Logger
}

// Option configures a Composer
type Option func(*Composer)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// WithTransitionHook registers fn to observe every state change.
// fn runs with the composer locked and must not call back into it.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Composer) {
		c.onChange = fn
	}
}

// New creates a composer with default fields
func New(sender Sender, store DraftStore, queue Notifier, settings Settings, opts ...Option) *Composer {
	c := &Composer{
		fields:   draft.Default(),
		state:    StateIdle,
		relay:    sender,
		store:    store,
		queue:    queue,
		settings: settings,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "composer")
	return c
}

// UpdateField sets one composition field. Booleans are parsed with
// strconv.ParseBool; template must be one of draft.Templates.
func (c *Composer) UpdateField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return setField(&c.fields, name, value)
}

// UpdateFields sets several fields at once. Either every value is valid
// and all are applied, or the composition is left unchanged.
func (c *Composer) UpdateFields(values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.fields
	for _, name := range names {
		if err := setField(&next, name, values[name]); err != nil {
			return err
		}
	}
	c.fields = next
	return nil
}

func setField(d *draft.Draft, name, value string) error {
	switch name {
	case FieldRecipient:
		d.Recipient = value
	case FieldTemplate:
		if !draft.IsTemplate(value) {
			return fmt.Errorf("unknown template %q", value)
		}
		d.Template = value
	case FieldSubject:
		d.Subject = value
	case FieldBody:
		d.Body = value
	case FieldTrackOpens, FieldTrackClicks:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
		if name == FieldTrackOpens {
			d.TrackOpens = b
		} else {
			d.TrackClicks = b
		}
	default:
		return &UnknownFieldError{Field: name}
	}
	return nil
}

// Fields returns a copy of the current fields
func (c *Composer) Fields() draft.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields
}

// CanSubmit reports whether every required field is filled in.
// It is advisory; Submit validates again.
func (c *Composer) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(missingFields(c.fields)) == 0
}

// State returns the current lifecycle state
func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a submission is in flight
func (c *Composer) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateSubmitting
}

// StatusMessage returns the inline status line
func (c *Composer) StatusMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns fields and lifecycle state read under one lock
func (c *Composer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Fields:        c.fields,
		State:         c.state,
		Busy:          c.state == StateSubmitting,
		CanSubmit:     len(missingFields(c.fields)) == 0,
		StatusMessage: c.status,
	}
}

// LoadDraft replaces all fields with the stored draft
func (c *Composer) LoadDraft() draft.Draft {
	d := c.store.Load()

	c.mu.Lock()
	c.fields = d
	c.mu.Unlock()

	return d
}

// SaveDraft stores the current fields
func (c *Composer) SaveDraft() error {
	c.mu.Lock()
	d := c.fields
	c.mu.Unlock()

	err := c.store.Save(d)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.status = StatusDraftSaveFailed
		c.logger.Error("failed to save draft", "error", err)
		return err
	}
	c.status = StatusDraftSaved
	return nil
}

// Format applies a rich-text insertion to the body at sel
func (c *Composer) Format(kind richtext.Kind, sel richtext.Selection) (richtext.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := richtext.Apply(kind, c.fields.Body, sel)
	if err != nil {
		return richtext.Result{}, err
	}
	c.fields.Body = res.Text
	return res, nil
}

// Submit validates the fields and sends them through the relay once.
// It returns ErrSubmitInProgress without contacting the relay if a
// submission is already pending, *ValidationError if required fields are
// blank, or the relay error. The composer is idle again on return.
func (c *Composer) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		metrics.IncSubmissions("busy")
		return ErrSubmitInProgress
	}

	c.transition(StateValidating)
	if missing := missingFields(c.fields); len(missing) > 0 {
		c.status = StatusInvalid
		c.transition(StateIdle)
		c.mu.Unlock()
		metrics.IncSubmissions("invalid")
		return &ValidationError{Fields: missing}
	}

	req := c.buildRequest(c.fields)
	c.transition(StateSubmitting)
	c.mu.Unlock()

	metrics.SubmissionStarted()
	start := time.Now()
	resp, err := c.relay.Send(ctx, req)
	metrics.SubmissionFinished(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.queue.Show(notify.KindSuccess, "Email Sent", "Your email has been queued successfully", SuccessLifetime)
		c.status = StatusQueued
		c.transition(StateSuccess)
		c.transition(StateIdle)
		metrics.IncSubmissions("success")
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.logger.Info("submission accepted",
			"recipient_domain", email.ExtractDomain(req.To),
			"template", req.Template,
			"status", status,
			"duration", time.Since(start),
		)
		return nil
	}

	var re *relay.Error
	if errors.As(err, &re) && !re.Transport() {
		msg := "Error: " + re.Detail
		c.queue.Show(notify.KindError, "Failed", msg, FailureLifetime)
		c.status = msg
		metrics.IncSubmissions("rejected")
		c.logger.Warn("submission rejected", "status", re.StatusCode, "detail", re.Detail)
	} else {
		detail := err.Error()
		if re != nil {
			detail = re.Detail
		}
		toast, status := detail, detail
		if detail == "" {
			toast, status = "Check connection", StatusNetworkError
		}
		c.queue.Show(notify.KindError, "Network error", toast, 0)
		c.status = status
		metrics.IncSubmissions("transport_error")
		c.logger.Warn("submission failed", "error", err)
	}

	c.transition(StateFailed)
	c.transition(StateIdle)
	return err
}

// BuildRequest returns the payload Submit would send for the current fields
func (c *Composer) BuildRequest() *relay.SubmissionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildRequest(c.fields)
}

func (c *Composer) buildRequest(d draft.Draft) *relay.SubmissionRequest {
	to := strings.TrimSpace(d.Recipient)
	return &relay.SubmissionRequest{
		To:       to,
		From:     c.settings.Sender,
		Template: email.TemplateSlug(d.Template),
		Context: relay.SubmissionContext{
			SubjectLine:             strings.TrimSpace(d.Subject),
			EmailBody:               d.Body,
			TrackOpens:              d.TrackOpens,
			TrackClicks:             d.TrackClicks,
			ReferralTrackingPageURL: c.settings.ReferralURL(),
			Recipient:               to,
		},
		Environment: c.settings.Environment,
	}
}

// transition must be called with c.mu held
func (c *Composer) transition(to State) {
	from := c.state
	c.state = to
	c.logger.Debug("state transition", "from", from, "to", to)
	if c.onChange != nil {
		c.onChange(from, to)
	}
}

func missingFields(d draft.Draft) []string {
	var missing []string
	if strings.TrimSpace(d.Recipient) == "" {
		missing = append(missing, FieldRecipient)
	}
	if strings.TrimSpace(d.Subject) == "" {
		missing = append(missing, FieldSubject)
	}
	if strings.TrimSpace(d.Body) == "" {
		missing = append(missing, FieldBody)
	}
	return missing
}
