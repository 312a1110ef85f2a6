package request

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/benvon/medvax-chat/internal/models"
)

type contextKey string

const adminContextKey contextKey = "admin"

// unknown is recorded when the client did not supply a value.
const unknown = "unknown"

// AdminContextKey returns the context key used for admin claims. Exposed for tests that inject non-claim values.
func AdminContextKey() contextKey { return adminContextKey }

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
// The port is stripped from RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if r.RemoteAddr == "" {
		return unknown
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Metadata captures the client attributes recorded on new sessions and fed to
// the security check. Missing values become "unknown".
func Metadata(r *http.Request) models.RequestMetadata {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		ua = unknown
	}
	return models.RequestMetadata{
		IPAddress: ClientIP(r),
		UserAgent: ua,
	}
}

// PeekJSONString reads the top-level string field from a JSON body without
// consuming it: the body is restored for the next handler. At most limit bytes
// are inspected; anything unreadable yields "".
func PeekJSONString(r *http.Request, field string, limit int64) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, limit))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), rest), rest}
	if err != nil {
		return ""
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(buf, &fields) != nil {
		return ""
	}
	var v string
	if json.Unmarshal(fields[field], &v) != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// WithAdmin returns a context with the verified admin claims attached.
func WithAdmin(ctx context.Context, claims *models.AdminClaims) context.Context {
	return context.WithValue(ctx, adminContextKey, claims)
}

// AdminFromContext returns the admin claims from the request context, or nil if missing or wrong type.
func AdminFromContext(r *http.Request) *models.AdminClaims {
	c, _ := r.Context().Value(adminContextKey).(*models.AdminClaims)
	return c
}
