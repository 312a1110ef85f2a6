package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/request"
)

type auditKey struct{}

// auditRecord is filled in by middleware further down the chain.
type auditRecord struct {
	subject string
}

func recordAdminSubject(ctx context.Context, subject string) {
	if rec, ok := ctx.Value(auditKey{}).(*auditRecord); ok {
		rec.subject = subject
	}
}

// Audit logs security-related events for monitoring and compliance
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &auditResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			rec := &auditRecord{}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), auditKey{}, rec)))

			statusCode := wrapped.statusCode
			ip := logpkg.SanitizeIP(request.ClientIP(r))
			path := logpkg.SanitizePath(r.URL.Path)

			switch statusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				logger.Warn("security_event",
					zap.Int("status_code", statusCode),
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.String("ip", ip),
				)
			case http.StatusTooManyRequests:
				logger.Warn("rate_limit_violation",
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.String("ip", ip),
				)
			}

			if r.Method != http.MethodGet && strings.Contains(r.URL.Path, "/admin/") && statusCode < 400 {
				logger.Info("admin_action",
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.Int("status_code", statusCode),
					zap.String("subject", logpkg.SanitizeUserID(rec.subject)),
				)
			}
		})
	}
}

// auditResponseWriter wraps http.ResponseWriter to capture status code
type auditResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (aw *auditResponseWriter) WriteHeader(code int) {
	aw.statusCode = code
	aw.ResponseWriter.WriteHeader(code)
}
