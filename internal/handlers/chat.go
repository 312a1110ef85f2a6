package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/request"
	"github.com/benvon/medvax-chat/internal/services/conversation"
)

const codeDialogflowError = "DIALOGFLOW_ERROR"

// Chatter answers one chat turn.
type Chatter interface {
	Chat(ctx context.Context, turn conversation.Turn) (*conversation.Reply, error)
}

// ChatHandler serves POST /chat.
type ChatHandler struct {
	chat   Chatter
	logger *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat Chatter, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{chat: chat, logger: log}
}

// RegisterRoutes registers chat routes. limit may be nil.
func (h *ChatHandler) RegisterRoutes(r *mux.Router, limit RouteWrapper) {
	r.Handle("/chat", limit.apply(models.RatelimitRouteChat, h.Chat)).Methods(http.MethodPost)
}

// ChatRequest is the body of POST /chat. Fields stay untyped so a value of the
// wrong JSON type is reported by the gateway with its own error code.
type ChatRequest struct {
	Message     any `json:"message"`
	UserID      any `json:"userId"`
	SessionID   any `json:"sessionId,omitempty"`
	ContextData any `json:"contextData,omitempty"`
}

// Chat sends the user's message to the NLU engine and returns its reply.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// A non-string session override is ignored like any other invalid one.
	sessionID, _ := req.SessionID.(string)
	userID, _ := req.UserID.(string)

	reply, err := h.chat.Chat(r.Context(), conversation.Turn{
		Message:     req.Message,
		UserID:      req.UserID,
		SessionID:   sessionID,
		ContextData: req.ContextData,
		Meta:        request.Metadata(r),
	})
	if err != nil {
		var verr *conversation.ValidationError
		switch {
		case errors.As(err, &verr):
			respondJSONError(w, http.StatusBadRequest, verr.Code, verr.Message)
		case errors.Is(err, conversation.ErrSessionUnavailable):
			h.logger.Error("chat_session_unavailable",
				zap.String("user_id", logger.SanitizeUserID(userID)),
				zap.String("error", logger.SanitizeError(err)),
			)
			respondJSONError(w, http.StatusInternalServerError, codeDialogflowError,
				"Error processing your message. Please try again.")
		default:
			h.logger.Error("chat_failed",
				zap.String("user_id", logger.SanitizeUserID(userID)),
				zap.String("error", logger.SanitizeError(err)),
			)
			respondJSONError(w, http.StatusInternalServerError, codeInternalError,
				"Error processing chatbot request. Please try again later.")
		}
		return
	}

	respondJSON(w, http.StatusOK, reply)
}
