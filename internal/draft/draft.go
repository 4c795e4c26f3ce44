// Package draft persists the single in-progress email composition.
package draft

import (
	"slices"
)

// DefaultTemplate is the template of a fresh composition
const DefaultTemplate = "Blank Email"

// Templates lists the templates an operator can pick, in display order
var Templates = []string{
	DefaultTemplate,
	"Weekly Newsletter",
	"Product Launch",
	"Transactional Alert",
}

// IsTemplate reports whether name is one of Templates
func IsTemplate(name string) bool {
	return slices.Contains(Templates, name)
}

// Draft is the persisted snapshot of an unsent composition
type Draft struct {
	Recipient   string `json:"recipient"`
	Template    string `json:"template"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	TrackOpens  bool   `json:"trackOpens"`
	TrackClicks bool   `json:"trackClicks"`
}

// Default returns the draft of a fresh composition
func Default() Draft {
	return Draft{
		Template:    DefaultTemplate,
		TrackClicks: true,
	}
}

// record is the on-disk shape. Older or hand-edited values may omit fields,
// so absent trackClicks and an absent or unknown template fall back to
// their defaults.
type record struct {
	Recipient   string `json:"recipient"`
	Template    string `json:"template"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	TrackOpens  bool   `json:"trackOpens"`
	TrackClicks *bool  `json:"trackClicks"`
}

func (r record) draft() Draft {
	d := Draft{
		Recipient:   r.Recipient,
		Template:    r.Template,
		Subject:     r.Subject,
		Body:        r.Body,
		TrackOpens:  r.TrackOpens,
		TrackClicks: r.TrackClicks == nil || *r.TrackClicks,
	}
	if !IsTemplate(d.Template) {
		d.Template = DefaultTemplate
	}
	return d
}
