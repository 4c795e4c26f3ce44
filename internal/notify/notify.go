// Package notify holds transient user-facing notifications.
//
// A Queue is an owned service object: build one at the composition root and
// pass it to whatever needs to tell the user something. Every notification
// removes itself after its lifetime unless it is dismissed first.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/emailflow/internal/metrics"
)

// DefaultLifetime is used when Show is called without a positive lifetime.
const DefaultLifetime = 4500 * time.Millisecond

// Kind is the notification severity
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// ParseKind parses a kind name. An empty name is treated as info.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindInfo, nil
	case KindSuccess, KindError, KindInfo:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown notification kind %q", s)
}

// Notification is a single transient message
type Notification struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	Title     string        `json:"title,omitempty"`
	Message   string        `json:"message,omitempty"`
	Lifetime  time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// ExpiresAt returns the time the notification will be removed
// unless it is dismissed earlier.
func (n Notification) ExpiresAt() time.Time {
	return n.CreatedAt.Add(n.Lifetime)
}

// Queue is an ordered collection of live notifications.
// The number of live notifications is not capped.
type Queue struct {
	mu              sync.Mutex
	items           []Notification
	timers          map[string]*time.Timer
	defaultLifetime time.Duration
	logger          *slog.Logger
	closed          bool
}

// Option configures a Queue
type Option func(*Queue)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithDefaultLifetime overrides DefaultLifetime
func WithDefaultLifetime(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.defaultLifetime = d
		}
	}
}

// New creates an empty queue
func New(opts ...Option) *Queue {
	q := &Queue{
		timers:          make(map[string]*time.Timer),
		defaultLifetime: DefaultLifetime,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Show appends a notification and schedules its removal after lifetime.
// A non-positive lifetime means the queue default. After Close the
// notification is returned but not queued.
func (q *Queue) Show(kind Kind, title, message string, lifetime time.Duration) Notification {
	if kind == "" {
		kind = KindInfo
	}
	if lifetime <= 0 {
		lifetime = q.defaultLifetime
	}

	n := Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		Lifetime:  lifetime,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Debug("notification dropped, queue closed", "title", n.Title)
		return n
	}

	id := n.ID
	q.items = append(q.items, n)
	q.timers[id] = time.AfterFunc(lifetime, func() {
		if q.remove(id) {
			q.logger.Debug("notification expired", "id", id)
		}
	})

	metrics.IncNotificationsShown(string(kind))
	metrics.SetNotificationsActive(len(q.items))

	q.logger.Debug("notification shown",
		"id", n.ID,
		"kind", n.Kind,
		"title", n.Title,
		"lifetime", lifetime,
	)

	return n
}

// Dismiss removes the notification with id.
// It reports whether a live notification was removed; dismissing an
// expired or unknown id is a no-op.
func (q *Queue) Dismiss(id string) bool {
	removed := q.remove(id)
	if removed {
		q.logger.Debug("notification dismissed", "id", id)
	}
	return removed
}

// remove deletes id from the collection and stops its timer.
// Safe to call more than once for the same id.
func (q *Queue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}

	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			metrics.SetNotificationsActive(len(q.items))
			return true
		}
	}
	return false
}

// List returns the live notifications in insertion order
func (q *Queue) List() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}

// Get returns the live notification with id
func (q *Queue) Get(id string) (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, n := range q.items {
		if n.ID == id {
			return n, true
		}
	}
	return Notification{}, false
}

// Len returns the number of live notifications
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops all pending expiry timers. Notifications already queued
// stay until dismissed; later Show calls queue nothing.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.closed = true
}
