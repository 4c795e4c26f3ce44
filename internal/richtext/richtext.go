// Package richtext inserts plain-text markup around a selection.
//
// Apply is pure: it returns the new text and where the cursor should go,
// and leaves applying that cursor to whatever input control the caller owns.
// Offsets count runes, not bytes.
package richtext

import (
	"errors"
	"fmt"
	"strings"
)

// LinkTarget is the placeholder URL inserted by the link command
const LinkTarget = "https://example.com"

// Kind is a formatting command
type Kind string

const (
	Bold      Kind = "bold"
	Italic    Kind = "italic"
	Underline Kind = "underline"
	List      Kind = "list"
	Link      Kind = "link"
	Code      Kind = "code"
)

// Kinds lists every formatting command in toolbar order
var Kinds = []Kind{Bold, Italic, Underline, List, Link, Code}

// ErrUnknownKind is returned for a formatting command Apply does not know
var ErrUnknownKind = errors.New("unknown format kind")

// ParseKind parses a formatting command name
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Selection is a half-open rune range [Start, End). Start == End is a cursor.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Collapsed reports whether the selection is a bare cursor
func (s Selection) Collapsed() bool {
	return s.Start == s.End
}

// Result is the outcome of Apply
type Result struct {
	Text   string    `json:"text"`
	Cursor Selection `json:"cursor"`
}

// Apply formats the selected part of text.
// The selection is clamped to the text and normalized so Start <= End.
// The returned cursor is collapsed right after the inserted markup.
func Apply(kind Kind, text string, sel Selection) (Result, error) {
	runes := []rune(text)
	sel = clamp(sel, len(runes))

	selected := string(runes[sel.Start:sel.End])

	insert, err := transform(kind, selected)
	if err != nil {
		return Result{}, err
	}

	var b strings.Builder
	b.Grow(len(text) + len(insert))
	b.WriteString(string(runes[:sel.Start]))
	b.WriteString(insert)
	b.WriteString(string(runes[sel.End:]))

	pos := sel.Start + len([]rune(insert))
	return Result{
		Text:   b.String(),
		Cursor: Selection{Start: pos, End: pos},
	}, nil
}

func transform(kind Kind, selected string) (string, error) {
	switch kind {
	case Bold:
		return "**" + orDefault(selected, "text") + "**", nil
	case Italic:
		return "_" + orDefault(selected, "text") + "_", nil
	case Underline:
		return "<u>" + orDefault(selected, "text") + "</u>", nil
	case List:
		if selected == "" {
			return "- item", nil
		}
		lines := strings.Split(selected, "\n")
		for i, l := range lines {
			if l != "" {
				lines[i] = "- " + l
			}
		}
		return strings.Join(lines, "\n"), nil
	case Link:
		return "[" + orDefault(selected, "link text") + "](" + LinkTarget + ")", nil
	case Code:
		return "`" + orDefault(selected, "code") + "`", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func orDefault(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func clamp(sel Selection, n int) Selection {
	if sel.Start > sel.End {
		sel.Start, sel.End = sel.End, sel.Start
	}
	sel.Start = min(max(sel.Start, 0), n)
	sel.End = min(max(sel.End, 0), n)
	return sel
}
