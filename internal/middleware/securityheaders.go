package middleware

import (
	"net/http"
	"strings"
)

// docsCSP lets the Swagger UI load its own scripts and styles.
const docsCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:"

const hstsValue = "max-age=31536000; includeSubDomains"

var baseSecurityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "no-referrer",
	"Permissions-Policy":     "camera=(), microphone=(), geolocation=()",
}

// SecurityHeaders sets hardening headers on every response. Chatbot API
// responses carry conversation data and are marked no-store.
func SecurityHeaders(enableHSTS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range baseSecurityHeaders {
				h.Set(k, v)
			}

			switch {
			case strings.HasPrefix(r.URL.Path, "/docs/"):
				h.Set("Content-Security-Policy", docsCSP)
			default:
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				h.Set("Cache-Control", "no-store")
			}

			// Only over TLS, so plain-HTTP local runs never pin the host.
			if enableHSTS && r.TLS != nil {
				h.Set("Strict-Transport-Security", hstsValue)
			}

			next.ServeHTTP(w, r)
		})
	}
}
