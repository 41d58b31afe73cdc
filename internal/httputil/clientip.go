// Package httputil holds small helpers shared by the HTTP layer.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address from the request for logging.
// When trustProxy is true, the X-Forwarded-For (leftmost entry) and
// X-Real-IP headers take precedence over RemoteAddr. Only enable
// trustProxy behind a trusted reverse proxy; the headers are otherwise
// attacker-controlled.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedFor(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedFor returns the leftmost entry of an X-Forwarded-For value,
// which is the original client as recorded by the first proxy.
func forwardedFor(xff string) string {
	if i := strings.IndexByte(xff, ','); i >= 0 {
		xff = xff[:i]
	}
	return strings.TrimSpace(xff)
}
