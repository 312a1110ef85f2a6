package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/request"
	"github.com/benvon/medvax-chat/internal/services/session"
	"github.com/benvon/medvax-chat/internal/validation"
)

// SessionService is the part of the session manager the public routes use.
type SessionService interface {
	GetOrCreateSession(ctx context.Context, userID string, meta models.RequestMetadata) (*models.SessionInfo, error)
	GetSessionInfo(ctx context.Context, userID string) (*models.SessionInfo, error)
}

// SessionHandler serves the session lookup and conversation start routes.
type SessionHandler struct {
	sessions SessionService
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionService, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, logger: log}
}

// RegisterRoutes registers session routes. limit may be nil.
func (h *SessionHandler) RegisterRoutes(r *mux.Router, limit RouteWrapper) {
	r.HandleFunc("/session/{userId}", h.GetSession).Methods(http.MethodGet)
	r.Handle("/start-conversation",
		limit.apply(models.RatelimitRouteStartConversation, h.StartConversation)).Methods(http.MethodPost)
}

// StartConversationRequest is the body of POST /start-conversation.
type StartConversationRequest struct {
	UserID string `json:"userId" validate:"required,chat_user_id"`
}

// StartConversationResponse confirms the session the user will chat in.
type StartConversationResponse struct {
	Message   string  `json:"message"`
	UserID    string  `json:"userId"`
	SessionID *string `json:"sessionId"`
	IsActive  bool    `json:"isActive"`
}

// userIDProblem classifies a validation failure of a user id.
// It returns "" when err is nil.
func userIDProblem(err error) string {
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
		return codeMissingUserID
	}
	return codeInvalidUserID
}

// GetSession returns the user's active session, or an inactive placeholder.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathUserID(r))

	switch userIDProblem(validation.Validate.Var(userID, "required,chat_user_id")) {
	case codeMissingUserID:
		respondJSONError(w, http.StatusBadRequest, codeMissingUserID, "User ID is required")
		return
	case codeInvalidUserID:
		respondJSONError(w, http.StatusBadRequest, codeInvalidUserID, "Invalid user ID format")
		return
	}

	info, err := h.sessions.GetSessionInfo(r.Context(), userID)
	if err != nil {
		h.logger.Error("session_lookup_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, codeInternalError, "Error retrieving session information")
		return
	}

	respondJSON(w, http.StatusOK, info)
}

// StartConversation resumes or creates the user's session.
func (h *SessionHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)

	switch userIDProblem(validation.Validate.Struct(req)) {
	case codeMissingUserID:
		respondJSONError(w, http.StatusBadRequest, codeMissingUserID,
			"User ID is required. Please provide a unique identifier from the frontend.")
		return
	case codeInvalidUserID:
		respondJSONError(w, http.StatusBadRequest, codeInvalidUserID,
			"Invalid user ID format. Please provide a valid UUID.")
		return
	}

	info, err := h.sessions.GetOrCreateSession(r.Context(), req.UserID, request.Metadata(r))
	if err != nil {
		if errors.Is(err, session.ErrInvalidUserID) {
			respondJSONError(w, http.StatusBadRequest, codeInvalidUserID,
				"Invalid user ID format. Please provide a valid UUID.")
			return
		}
		h.logger.Error("start_conversation_failed",
			zap.String("user_id", logger.SanitizeUserID(req.UserID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, codeInternalError, "Error starting conversation")
		return
	}

	respondJSON(w, http.StatusOK, StartConversationResponse{
		Message:   "Conversation started successfully",
		UserID:    info.UserID,
		SessionID: info.SessionID,
		IsActive:  info.IsActive,
	})
}
