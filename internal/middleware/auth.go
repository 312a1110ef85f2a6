package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/request"
	"github.com/benvon/medvax-chat/internal/services/auth"
)

// AdminVerifier validates admin bearer tokens.
type AdminVerifier interface {
	Verify(ctx context.Context, token string) (*models.AdminClaims, error)
	Authorize(claims *models.AdminClaims) error
}

// AdminAuth rejects requests without a valid admin bearer token (401) or
// whose token lacks the admin role (403). Verified claims are stored on the
// request context.
func AdminAuth(verifier AdminVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "You are not logged in!", "Missing Authorization header", logger)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "You are not logged in!", "Invalid Authorization header format", logger)
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, strings.TrimSpace(token))
			if err != nil {
				logger.Warn("admin_token_rejected",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				if errors.Is(err, auth.ErrInvalidToken) {
					writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token", "", logger)
					return
				}
				// Key source unreachable.
				writeError(w, http.StatusServiceUnavailable, CodeInternalError, "Token verification unavailable", "", logger)
				return
			}

			if err := verifier.Authorize(claims); err != nil {
				logger.Warn("admin_role_denied",
					zap.String("subject", logpkg.SanitizeUserID(claims.Subject)),
					zap.String("role", logpkg.SanitizeString(claims.Role, logpkg.MaxUserIDLength)),
				)
				writeError(w, http.StatusForbidden, CodeForbidden, "Access Denied: Insufficient permissions", "", logger)
				return
			}

			recordAdminSubject(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(request.WithAdmin(ctx, claims)))
		})
	}
}
