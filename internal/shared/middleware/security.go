package middleware

import (
	"net/http"
	"strings"
)

// HSTS adds Strict-Transport-Security header to enforce HTTPS
func HSTS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// IsHostAllowed validates a host against the allowed hosts list. Ports are
// ignored on both sides; an empty list allows everything. Used to prevent
// redirect poisoning when redirecting HTTP to HTTPS.
func IsHostAllowed(host string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}

	hostname := strings.ToLower(stripPort(host))
	for _, allowed := range allowedHosts {
		if strings.ToLower(stripPort(allowed)) == hostname {
			return true
		}
	}
	return false
}

// stripPort removes a trailing :port, handling bracketed IPv6 literals.
func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			return host[1:idx]
		}
		return host
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx+1:], ":") {
		return host[:idx]
	}
	return host
}
