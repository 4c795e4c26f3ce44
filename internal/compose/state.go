package compose

import (
	"errors"
	"fmt"
	"strings"
)

// State is a step of the submission lifecycle
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// Field names accepted by UpdateField
const (
	FieldRecipient   = "recipient"
	FieldTemplate    = "template"
	FieldSubject     = "subject"
	FieldBody        = "body"
	FieldTrackOpens  = "track_opens"
	FieldTrackClicks = "track_clicks"
)

// Status lines shown next to the form
const (
	StatusDraftSaved      = "Draft saved"
	StatusDraftSaveFailed = "Failed to save draft"
	StatusInvalid         = "Please fill required fields"
	StatusQueued          = "Email queued or sent via workflow"
	StatusNetworkError    = "Network error"
)

// ErrSubmitInProgress is returned by Submit while another submission is pending
var ErrSubmitInProgress = errors.New("submission already in progress")

// ValidationError lists the required fields that were blank at submit time
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// UnknownFieldError is returned by UpdateField for a name it does not know
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}
