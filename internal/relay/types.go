// Package relay carries a composed email to the backend workflow service.
//
// Client posts a SubmissionRequest to the intermediary endpoint; Forwarder is
// that endpoint and passes the request through to the backend unchanged.
package relay

import (
	"errors"
	"fmt"
)

const (
	// RelayPath is where the intermediary endpoint is mounted
	RelayPath = "/api/send-email"

	// SendMailPath is the backend workflow entry point
	SendMailPath = "/api/workflows/send-mail"

	maxBodyBytes = 1 << 20
)

// SubmissionRequest is the payload the backend workflow service accepts
type SubmissionRequest struct {
	To          string            `json:"to"`
	From        string            `json:"from"`
	Template    string            `json:"template"`
	Context     SubmissionContext `json:"context"`
	Environment string            `json:"environment"`
}

// SubmissionContext holds the template variables
type SubmissionContext struct {
	SubjectLine             string `json:"subject_line"`
	EmailBody               string `json:"email_body"`
	TrackOpens              bool   `json:"track_opens"`
	TrackClicks             bool   `json:"track_clicks"`
	ReferralTrackingPageURL string `json:"referral_tracking_page_url"`
	Recipient               string `json:"recipient"`
}

// Response is a successful relay outcome
type Response struct {
	StatusCode int
	// Body is the decoded response object; empty if the backend did not send JSON
	Body map[string]any
}

// Error is a failed relay outcome.
// StatusCode is zero when the request never got an HTTP response.
type Error struct {
	Detail     string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("relay transport error: %s", e.Detail)
	}
	return fmt.Sprintf("relay rejected (HTTP %d): %s", e.StatusCode, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport reports whether the failure happened below HTTP
func (e *Error) Transport() bool {
	return e.StatusCode == 0
}

// IsTransport reports whether err is a relay transport failure
func IsTransport(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Transport()
}
