package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/queue"
	"github.com/benvon/medvax-chat/internal/request"
	"github.com/benvon/medvax-chat/internal/services/nlu"
	"github.com/benvon/medvax-chat/internal/validation"
	"github.com/benvon/medvax-chat/internal/workers"
)

const (
	// DefaultSessionListLimit is the page size of GET /admin/sessions.
	DefaultSessionListLimit = 100
	// MaxSessionListLimit caps the limit query parameter.
	MaxSessionListLimit = 1000

	codeInvalidLimit    = "INVALID_LIMIT"
	codeNoActiveSession = "NO_ACTIVE_SESSION"
	codeNotSupported    = "NOT_SUPPORTED"
	codeNLUError        = "NLU_ERROR"
	codeQueueError      = "QUEUE_UNAVAILABLE"
)

// AdminSessionService is the part of the session manager the admin routes use.
type AdminSessionService interface {
	GetSessionStatistics(ctx context.Context) (*models.SessionStatistics, error)
	GetAllActiveSessions(ctx context.Context, limit int) ([]*models.SessionSummary, error)
	GetUserSessions(ctx context.Context, userID string) ([]*models.SessionSummary, error)
	DeactivateSession(ctx context.Context, userID string) (bool, error)
}

// CleanupController runs and reports on expired-session cleanup.
type CleanupController interface {
	ForceCleanup(ctx context.Context) (*workers.CleanupResult, error)
	Status() workers.SchedulerStatus
}

// AdminHandler serves the /admin routes. Authentication is applied by the
// router; handlers only read the verified claims.
type AdminHandler struct {
	sessions AdminSessionService
	cleanup  CleanupController
	jobs     queue.Enqueuer
	trainer  nlu.IntentTrainer
	logger   *zap.Logger
}

// AdminOption configures optional admin capabilities.
type AdminOption func(*AdminHandler)

// WithJobQueue sends intent training to the worker.
func WithJobQueue(jobs queue.Enqueuer) AdminOption {
	return func(h *AdminHandler) { h.jobs = jobs }
}

// WithIntentTrainer trains intents in-process when no job queue is set.
func WithIntentTrainer(trainer nlu.IntentTrainer) AdminOption {
	return func(h *AdminHandler) { h.trainer = trainer }
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sessions AdminSessionService, cleanup CleanupController, log *zap.Logger, opts ...AdminOption) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &AdminHandler{sessions: sessions, cleanup: cleanup, logger: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers admin routes on a router already prefixed with /admin.
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/statistics", h.Statistics).Methods(http.MethodGet)
	r.HandleFunc("/sessions", h.ListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{userId}", h.UserSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{userId}", h.EndSession).Methods(http.MethodDelete)
	r.HandleFunc("/cleanup", h.Cleanup).Methods(http.MethodPost)
	r.HandleFunc("/scheduler", h.SchedulerStatus).Methods(http.MethodGet)
	r.HandleFunc("/train", h.TrainIntent).Methods(http.MethodPost)
}

// Statistics returns aggregate session counts.
func (h *AdminHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.GetSessionStatistics(r.Context())
	if err != nil {
		h.logger.Error("session_statistics_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusInternalServerError, codeInternalError, "Error retrieving session statistics")
		return
	}
	respondSuccess(w, http.StatusOK, stats)
}

// ListSessions returns active sessions, most recent activity first.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := DefaultSessionListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxSessionListLimit {
			respondJSONError(w, http.StatusBadRequest, codeInvalidLimit,
				"limit must be an integer between 1 and "+strconv.Itoa(MaxSessionListLimit))
			return
		}
		limit = n
	}

	sessions, err := h.sessions.GetAllActiveSessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("session_list_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusInternalServerError, codeInternalError, "Error retrieving active sessions")
		return
	}
	respondSuccess(w, http.StatusOK, sessions)
}

// UserSessions returns every session recorded for one user.
func (h *AdminHandler) UserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := adminUserID(w, r)
	if !ok {
		return
	}
	sessions, err := h.sessions.GetUserSessions(r.Context(), userID)
	if err != nil {
		h.logger.Error("user_sessions_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, codeInternalError, "Error retrieving user sessions")
		return
	}
	respondSuccess(w, http.StatusOK, sessions)
}

// EndSession deactivates the user's active session.
func (h *AdminHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := adminUserID(w, r)
	if !ok {
		return
	}
	ended, err := h.sessions.DeactivateSession(r.Context(), userID)
	if err != nil {
		h.logger.Error("session_deactivate_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, codeInternalError, "Error ending session")
		return
	}
	if !ended {
		respondJSONError(w, http.StatusNotFound, codeNoActiveSession, "No active session for this user")
		return
	}
	respondSuccess(w, http.StatusOK, map[string]any{"userId": userID, "deactivated": true})
}

// Cleanup runs an expired-session cleanup pass immediately.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.cleanup.ForceCleanup(r.Context())
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, codeInternalError, "Error cleaning up sessions")
		return
	}
	respondSuccess(w, http.StatusOK, res)
}

// SchedulerStatus reports the cleanup scheduler state.
func (h *AdminHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, h.cleanup.Status())
}

// TrainIntent adds an intent to the NLU agent, through the job queue when one
// is configured.
func (h *AdminHandler) TrainIntent(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil && h.trainer == nil {
		respondJSONError(w, http.StatusNotImplemented, codeNotSupported,
			"The configured NLU engine does not support intent training")
		return
	}

	var req models.TrainIntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IntentName = validation.SanitizeText(req.IntentName)
	req.ResponseText = validation.SanitizeText(req.ResponseText)
	for i, phrase := range req.TrainingPhrases {
		req.TrainingPhrases[i] = validation.SanitizeText(phrase)
	}
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, codeInvalidRequest,
			"Validation failed: "+strings.Join(validation.FieldErrors(err), "; "))
		return
	}

	requestedBy := ""
	if claims := request.AdminFromContext(r); claims != nil {
		requestedBy = claims.Subject
	}

	if h.jobs != nil {
		job := queue.NewTrainIntentJob(&req, requestedBy)
		if err := h.jobs.Enqueue(r.Context(), job); err != nil {
			h.logger.Error("train_intent_enqueue_failed",
				zap.String("intent_name", req.IntentName),
				zap.String("error", logger.SanitizeError(err)),
			)
			respondJSONError(w, http.StatusServiceUnavailable, codeQueueError, "Intent training could not be queued")
			return
		}
		h.logger.Info("train_intent_queued",
			zap.String("job_id", job.ID.String()),
			zap.String("intent_name", req.IntentName),
			zap.String("requested_by", requestedBy),
		)
		respondSuccess(w, http.StatusAccepted, &models.TrainIntentResult{
			Message: "Intent " + req.IntentName + " queued for training",
			JobID:   job.ID.String(),
			Queued:  true,
		})
		return
	}

	res, err := h.trainer.CreateIntent(r.Context(), &req)
	if err != nil {
		h.logger.Error("train_intent_failed",
			zap.String("intent_name", req.IntentName),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusBadGateway, codeNLUError, "Error adding intent")
		return
	}
	respondSuccess(w, http.StatusCreated, res)
}

func adminUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(pathUserID(r))
	if !validation.IsValidUUID(userID) {
		respondJSONError(w, http.StatusBadRequest, codeInvalidUserID, "Invalid user ID format")
		return "", false
	}
	return userID, true
}
