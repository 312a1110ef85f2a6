package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/models"
)

// dependencyTimeout bounds each extended-mode probe.
const dependencyTimeout = 5 * time.Second

// StatsSource supplies the session counts reported by the health check.
type StatsSource interface {
	GetSessionStatistics(ctx context.Context) (*models.SessionStatistics, error)
}

// DependencyCheck probes one backing service.
type DependencyCheck func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	stats   StatsSource
	checks  map[string]DependencyCheck
	started time.Time
	logger  *zap.Logger
	now     func() time.Time
}

// NewHealthChecker creates a new health checker. checks run only in extended
// mode; a nil check is reported as "not configured".
func NewHealthChecker(stats StatsSource, checks map[string]DependencyCheck, log *zap.Logger) *HealthChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthChecker{
		stats:   stats,
		checks:  checks,
		started: time.Now(),
		logger:  log,
		now:     time.Now,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string            `json:"status"`
	Timestamp      string            `json:"timestamp"`
	ActiveSessions *int64            `json:"activeSessions,omitempty"`
	TotalSessions  *int64            `json:"totalSessions,omitempty"`
	Uptime         float64           `json:"uptime,omitempty"`
	Error          string            `json:"error,omitempty"`
	Checks         map[string]string `json:"checks,omitempty"`
}

// HealthCheck reports session counts and, with ?mode=extended, the state of
// every backing service. Any failure answers 503.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	timestamp := now.UTC().Format(time.RFC3339)

	stats, err := h.stats.GetSessionStatistics(r.Context())
	if err != nil {
		h.logger.Error("health_check_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "unhealthy",
			Error:     "Service unavailable",
			Timestamp: timestamp,
		})
		return
	}

	response := HealthResponse{
		Status:         "healthy",
		Timestamp:      timestamp,
		ActiveSessions: &stats.ActiveSessions,
		TotalSessions:  &stats.TotalSessions,
		Uptime:         now.Sub(h.started).Seconds(),
	}

	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = h.runChecks(r.Context())
		for _, state := range response.Checks {
			if state != "healthy" && state != "not configured" {
				response.Status = "unhealthy"
			}
		}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	respondJSON(w, statusCode, response)
}

func (h *HealthChecker) runChecks(ctx context.Context) map[string]string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		check := h.checks[name]
		if check == nil {
			results[name] = "not configured"
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, dependencyTimeout)
		err := check(cctx)
		cancel()
		if err != nil {
			h.logger.Warn("dependency_unhealthy",
				zap.String("dependency", name),
				zap.String("error", logger.SanitizeError(err)),
			)
			results[name] = "unhealthy: " + logger.SanitizeError(err)
			continue
		}
		results[name] = "healthy"
	}
	return results
}
