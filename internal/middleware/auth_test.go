package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/request"
	"github.com/benvon/medvax-chat/internal/services/auth"
)

const adminSecret = "middleware-test-secret-0123456789"

func adminToken(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject("ops-1").
		Expiration(time.Now().Add(time.Hour)).
		Claim("role", role).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(adminSecret)))
	require.NoError(t, err)
	return string(signed)
}

func TestAdminAuth(t *testing.T) {
	t.Parallel()

	verifier, err := auth.NewVerifier(auth.Options{Secret: adminSecret, RequiredRole: "admin"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantCode: CodeUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: CodeUnauthorized},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantCode: CodeUnauthorized},
		{name: "garbage token", header: "Bearer not.a.jwt", wantStatus: http.StatusUnauthorized, wantCode: CodeUnauthorized},
		{name: "wrong role", header: "Bearer " + adminToken(t, "patient"), wantStatus: http.StatusForbidden, wantCode: CodeForbidden},
		{name: "admin", header: "Bearer " + adminToken(t, "admin"), wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + adminToken(t, "admin"), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen *models.AdminClaims
			h := AdminAuth(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = request.AdminFromContext(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/chatbot/admin/statistics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "ops-1", seen.Subject)
				return
			}
			assert.Nil(t, seen)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

type unreachableVerifier struct{}

func (unreachableVerifier) Verify(context.Context, string) (*models.AdminClaims, error) {
	return nil, errors.New("failed to get JWKS: connection refused")
}

func (unreachableVerifier) Authorize(*models.AdminClaims) error { return nil }

func TestAdminAuth_KeySourceDown(t *testing.T) {
	t.Parallel()

	h := AdminAuth(unreachableVerifier{}, nil)(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/api/chatbot/admin/statistics", nil)
	req.Header.Set("Authorization", "Bearer x.y.z")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAudit_AdminActionRecordsSubject(t *testing.T) {
	t.Parallel()

	verifier, err := auth.NewVerifier(auth.Options{Secret: adminSecret, RequiredRole: "admin"})
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)
	h := Audit(log)(AdminAuth(verifier, nil)(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/chatbot/admin/cleanup", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "admin"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("admin_action").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ops-1", entries[0].ContextMap()["subject"])

	req = httptest.NewRequest(http.MethodPost, "/api/chatbot/admin/cleanup", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 1, logs.FilterMessage("security_event").Len())
	assert.Equal(t, 1, logs.FilterMessage("admin_action").Len())
}
