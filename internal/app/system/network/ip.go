// Package network resolves the client address of a request behind a proxy.
package network

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the caller's address: the first X-Forwarded-For hop,
// then X-Real-IP, then RemoteAddr without its port. IPv6 addresses are
// returned without brackets.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.Trim(r.RemoteAddr, "[]")
}
