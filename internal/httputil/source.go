// Package httputil holds request helpers shared by the HTTP surface.
package httputil

import (
	"net"
	"net/http"
	"strings"

	"leadbridge/internal/constants"
)

// SourceID identifies the caller for rate limiting: the calling workflow
// when the workflow header is present, otherwise the client IP
func SourceID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(constants.HeaderWorkflowID)); id != "" {
		return "workflow:" + id
	}
	return "ip:" + GetClientIP(r)
}

// GetClientIP returns the first address of X-Forwarded-For, then
// X-Real-IP, then the host part of RemoteAddr. Bracketed IPv6 literals
// are unwrapped.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get(constants.HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := cleanIP(first); ip != "" {
			return ip
		}
	}

	if ip := cleanIP(r.Header.Get(constants.HeaderRealIP)); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return cleanIP(r.RemoteAddr)
	}
	return host
}

func cleanIP(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if host, _, err := net.SplitHostPort(s); err == nil {
			return host
		}
		s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	}
	return s
}
