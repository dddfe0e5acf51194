package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// parseLimit reads ?limit, falling back to def when it is missing or not a
// positive integer, and caps it at max.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	return min(limit, max)
}

// getClientIP returns the caller's address for the audit log. Proxy headers
// win over the socket address.
func getClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
