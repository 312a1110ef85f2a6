package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benvon/medvax-chat/internal/models"
)

type fakeStats struct {
	stats *models.SessionStatistics
	err   error
}

func (f fakeStats) GetSessionStatistics(context.Context) (*models.SessionStatistics, error) {
	return f.stats, f.err
}

func TestHealthChecker_HealthCheck(t *testing.T) {
	t.Parallel()

	okStats := fakeStats{stats: &models.SessionStatistics{TotalSessions: 10, ActiveSessions: 4}}

	tests := []struct {
		name       string
		stats      StatsSource
		checks     map[string]DependencyCheck
		query      string
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "basic healthy", stats: okStats, wantStatus: http.StatusOK},
		{name: "stats failure", stats: fakeStats{err: errors.New("db down")}, wantStatus: http.StatusServiceUnavailable},
		{
			name:  "basic mode skips dependency checks",
			stats: okStats,
			checks: map[string]DependencyCheck{
				"redis": func(context.Context) error { return errors.New("refused") },
			},
			wantStatus: http.StatusOK,
		},
		{
			name:  "extended healthy",
			stats: okStats,
			query: "?mode=extended",
			checks: map[string]DependencyCheck{
				"database": func(context.Context) error { return nil },
				"rabbitmq": nil,
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "healthy", "rabbitmq": "not configured"},
		},
		{
			name:  "extended failing dependency",
			stats: okStats,
			query: "?mode=extended",
			checks: map[string]DependencyCheck{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("refused") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "healthy", "redis": "unhealthy: refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker(tt.stats, tt.checks, nil)
			h.started = time.Now().Add(-90 * time.Second)

			rec := httptest.NewRecorder()
			h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/chatbot/health"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeBody(t, rec)
			if _, ok := body["timestamp"].(string); !ok {
				t.Error("timestamp missing")
			}

			if tt.wantStatus == http.StatusServiceUnavailable && tt.wantChecks == nil {
				if body["status"] != "unhealthy" || body["error"] != "Service unavailable" {
					t.Errorf("body = %v", body)
				}
				return
			}
			if body["activeSessions"] != float64(4) || body["totalSessions"] != float64(10) {
				t.Errorf("counts = %v", body)
			}
			if up, _ := body["uptime"].(float64); up < 90 {
				t.Errorf("uptime = %v", body["uptime"])
			}

			checks, _ := body["checks"].(map[string]any)
			if len(checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if checks[name] != want {
					t.Errorf("checks[%s] = %v, want %q", name, checks[name], want)
				}
			}
		})
	}
}
