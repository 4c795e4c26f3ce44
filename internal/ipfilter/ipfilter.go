// Package ipfilter restricts HTTP endpoints to a list of client networks
package ipfilter

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Filter holds the allowed client networks. An empty filter allows everyone.
type Filter struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// Parse builds a filter from IP addresses and CIDRs.
// A bare address is treated as a single-host prefix.
func Parse(entries []string, logger *slog.Logger) (*Filter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Filter{logger: logger}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			f.prefixes = append(f.prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP %q: %w", entry, err)
		}
		addr = addr.Unmap()
		f.prefixes = append(f.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return f, nil
}

// Validate reports the first invalid entry, if any
func Validate(entries []string) error {
	_, err := Parse(entries, nil)
	return err
}

// Enabled returns true if filtering is active
func (f *Filter) Enabled() bool {
	return len(f.prefixes) > 0
}

// Allows reports whether addr may connect
func (f *Filter) Allows(addr netip.Addr) bool {
	if !f.Enabled() {
		return true
	}
	addr = addr.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientAddr parses the host part of r.RemoteAddr. Proxy headers are left
// to chi's RealIP middleware, which rewrites RemoteAddr before this runs.
func clientAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// Middleware rejects requests from clients outside the filter with 403
func (f *Filter) Middleware(next http.Handler) http.Handler {
	if !f.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr, ok := clientAddr(r)
		if !ok || !f.Allows(addr) {
			f.logger.Warn("access denied by IP filter", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
