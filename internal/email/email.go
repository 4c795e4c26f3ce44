// Package email provides common email utility functions.
package email

import (
	"net/mail"
	"strings"
)

// ExtractDomain extracts the domain part from an email address.
// Returns empty string if the email is invalid.
func ExtractDomain(email string) string {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		at := strings.LastIndex(email, "@")
		if at <= 0 || at == len(email)-1 {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(email[at+1:]))
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}

// TemplateSlug converts a template display name into the identifier the
// workflow backend expects: lower case, each whitespace run replaced by a
// single underscore. Leading and trailing whitespace also become underscores.
func TemplateSlug(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	inSpace := false
	for _, r := range strings.ToLower(name) {
		if isSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// isSpace matches the JavaScript \s class used by the web composer
func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r', 0x00a0, 0x1680, 0x2028, 0x2029, 0x202f, 0x205f, 0x3000, 0xfeff:
		return true
	}
	return r >= 0x2000 && r <= 0x200a
}
