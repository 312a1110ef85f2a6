// Package conversation runs a chat turn end to end: validation, session
// resolution, intent detection, context carry-over and translation.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/services/nlu"
	"github.com/benvon/medvax-chat/internal/services/translate"
	"github.com/benvon/medvax-chat/internal/validation"
)

const (
	// FallbackText is returned when the engine cannot answer a turn.
	FallbackText = "I'm sorry, I couldn't understand that. Please try again."
	// FallbackIntent marks a fallback reply.
	FallbackIntent = "fallback"
	// DefaultEngineTimeout bounds one intent detection call.
	DefaultEngineTimeout = 10 * time.Second
)

// Validation error codes.
const (
	CodeMissingMessage = "MISSING_MESSAGE"
	CodeMissingUserID  = "MISSING_USER_ID"
	CodeInvalidUserID  = "INVALID_USER_ID"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeInvalidContext = "INVALID_CONTEXT"
)

// ErrSessionUnavailable is returned when no session could be established for a turn.
var ErrSessionUnavailable = errors.New("session unavailable")

// ValidationError rejects a turn before any external call is made.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SessionService is the part of the session manager a gateway needs.
type SessionService interface {
	GetOrCreateSession(ctx context.Context, userID string, meta models.RequestMetadata) (*models.SessionInfo, error)
	UpdateSessionContext(ctx context.Context, userID string, partial models.ContextData) (*models.Session, error)
}

// Turn is one inbound chat message.
type Turn struct {
	// Message and UserID carry the decoded JSON values; anything but a
	// non-empty string is rejected by Chat.
	Message   any
	UserID    any
	SessionID string
	// ContextData is the caller's raw context object, validated by Chat.
	ContextData any
	Meta        models.RequestMetadata
}

// Reply is the answer to a turn.
type Reply struct {
	Text                     string            `json:"text"`
	Intent                   string            `json:"intent"`
	Confidence               float64           `json:"confidence"`
	SessionID                string            `json:"sessionId"`
	Context                  map[string]string `json:"context"`
	Parameters               map[string]any    `json:"parameters"`
	Action                   string            `json:"action"`
	AllRequiredParamsPresent bool              `json:"allRequiredParamsPresent"`
	UserID                   string            `json:"userId"`
	Language                 string            `json:"language"`
}

// Gateway connects sessions to an NLU engine.
type Gateway struct {
	sessions      SessionService
	engine        nlu.Engine
	translator    translate.Translator
	logger        *zap.Logger
	tracer        trace.Tracer
	engineTimeout time.Duration
	languageCode  string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEngineTimeout bounds each intent detection call.
func WithEngineTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.engineTimeout = d
		}
	}
}

// WithLanguageCode sets the language the engine is queried in.
func WithLanguageCode(code string) Option {
	return func(g *Gateway) {
		if code != "" {
			g.languageCode = code
		}
	}
}

// NewGateway creates a gateway. A nil translator disables translation.
func NewGateway(sessions SessionService, engine nlu.Engine, translator translate.Translator, log *zap.Logger, opts ...Option) *Gateway {
	if translator == nil {
		translator = translate.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		sessions:      sessions,
		engine:        engine,
		translator:    translator,
		logger:        log,
		tracer:        otel.Tracer("github.com/benvon/medvax-chat/internal/services/conversation"),
		engineTimeout: DefaultEngineTimeout,
		languageCode:  nlu.DefaultLanguageCode,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Chat answers one turn. Validation failures return *ValidationError and a
// session that cannot be resolved returns ErrSessionUnavailable. Once a session
// exists, engine failures produce a fallback reply instead of an error.
func (g *Gateway) Chat(ctx context.Context, turn Turn) (*Reply, error) {
	ctx, span := g.tracer.Start(ctx, "conversation.chat")
	defer span.End()

	in, verr := validateTurn(turn)
	if verr != nil {
		span.SetAttributes(attribute.String("chat.validation_code", verr.Code))
		return nil, verr
	}
	message, sanitizedContext := in.message, in.context
	userID := logger.SanitizeUserID(in.userID)

	g.logger.Info("chat_request",
		zap.String("user_id", userID),
		zap.Int("message_length", in.length),
		zap.Bool("has_context", len(sanitizedContext) > 0),
	)

	if check := validation.PerformSecurityCheck(turn.Meta); check.IsSuspicious {
		g.logger.Warn("suspicious_chat_request",
			zap.String("user_id", userID),
			zap.Strings("reasons", check.Reasons),
			zap.String("ip_address", logger.SanitizeIP(turn.Meta.IPAddress)),
			zap.String("user_agent", logger.SanitizeUserAgent(turn.Meta.UserAgent)),
		)
	}

	language := g.translator.DetectLanguage(ctx, message)

	info, err := g.sessions.GetOrCreateSession(ctx, in.userID, turn.Meta)
	if err != nil || info.SessionID == nil {
		if err == nil {
			err = errors.New("no session id returned")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "session unavailable")
		g.logger.Error("chat_session_unavailable", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	sessionID := *info.SessionID
	if turn.SessionID != "" && validation.Validate.Var(turn.SessionID, "session_id") == nil {
		sessionID = turn.SessionID
	}
	span.SetAttributes(attribute.String("chat.session_id", sessionID))

	// The engine sees the session's slots with this turn's context merged over them.
	engineContext := sanitizedContext
	merged, err := g.sessions.UpdateSessionContext(ctx, in.userID, sanitizedContext)
	switch {
	case err != nil:
		g.logger.Warn("chat_context_merge_failed", zap.String("user_id", userID), zap.Error(err))
	case merged != nil && len(merged.ContextData) > 0:
		engineContext = merged.ContextData
	}

	result, err := g.detect(ctx, nlu.Query{
		SessionID:    sessionID,
		Text:         message,
		LanguageCode: g.languageCode,
		Context:      engineContext,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "intent detection failed")
		g.logger.Error("chat_engine_failed",
			zap.String("user_id", userID),
			zap.String("engine", g.engine.Name()),
			zap.Int("message_length", in.length),
			zap.Error(err),
		)
		return g.fallback(ctx, in.userID, sessionID, language), nil
	}

	if len(result.OutputContext) > 0 {
		carried := make(models.ContextData, len(result.OutputContext))
		for k, v := range result.OutputContext {
			carried[k] = v
		}
		if _, err := g.sessions.UpdateSessionContext(ctx, in.userID, carried); err != nil {
			g.logger.Warn("chat_context_merge_failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	text := result.Text
	if language != g.languageCode {
		text = g.translator.Translate(ctx, text, language)
	}

	span.SetAttributes(
		attribute.String("chat.intent", result.Intent),
		attribute.Float64("chat.confidence", result.Confidence),
	)
	g.logger.Info("chat_response",
		zap.String("user_id", userID),
		zap.String("intent", result.Intent),
		zap.Float64("confidence", result.Confidence),
		zap.String("language", language),
	)

	return &Reply{
		Text:                     text,
		Intent:                   result.Intent,
		Confidence:               result.Confidence,
		SessionID:                sessionID,
		Context:                  nonNilStrings(result.OutputContext),
		Parameters:               nonNilParams(result.Parameters),
		Action:                   result.Action,
		AllRequiredParamsPresent: result.AllRequiredParamsPresent,
		UserID:                   in.userID,
		Language:                 language,
	}, nil
}

func (g *Gateway) detect(ctx context.Context, q nlu.Query) (*nlu.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.engineTimeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "nlu.detect_intent",
		trace.WithAttributes(attribute.String("nlu.engine", g.engine.Name())))
	defer span.End()

	result, err := g.engine.DetectIntent(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if result == nil {
		return nil, nlu.ErrEmptyResult
	}
	return result, nil
}

func (g *Gateway) fallback(ctx context.Context, userID, sessionID, language string) *Reply {
	// The fallback is written in English whatever language the engine works in.
	text := FallbackText
	if language != translate.DefaultLanguage {
		text = g.translator.Translate(ctx, text, language)
	}
	return &Reply{
		Text:       text,
		Intent:     FallbackIntent,
		Confidence: 0,
		SessionID:  sessionID,
		Context:    map[string]string{},
		Parameters: map[string]any{},
		UserID:     userID,
		Language:   language,
	}
}

// checkedTurn is a turn that passed validation.
type checkedTurn struct {
	userID  string
	message string
	length  int
	context models.ContextData
}

// validateTurn returns the sanitized turn, or the first validation failure.
// Absent, null, empty, false and zero values count as missing.
func validateTurn(turn Turn) (*checkedTurn, *ValidationError) {
	if isBlank(turn.Message) {
		return nil, &ValidationError{Code: CodeMissingMessage, Message: "Message is required"}
	}
	if isBlank(turn.UserID) {
		return nil, &ValidationError{
			Code:    CodeMissingUserID,
			Message: "User ID is required. Please provide a unique identifier from the frontend.",
		}
	}
	userID, ok := turn.UserID.(string)
	if !ok || !validation.IsValidUUID(userID) {
		return nil, &ValidationError{
			Code:    CodeInvalidUserID,
			Message: "Invalid user ID format. Please provide a valid UUID.",
		}
	}

	raw, ok := turn.Message.(string)
	if !ok {
		return nil, &ValidationError{
			Code:    CodeInvalidMessage,
			Message: "Message validation failed: " + validation.ErrMessageEmpty,
		}
	}
	msg := validation.ValidateUserMessage(raw)
	if !msg.IsValid {
		return nil, &ValidationError{
			Code:    CodeInvalidMessage,
			Message: "Message validation failed: " + strings.Join(msg.Errors, ", "),
		}
	}

	cv := validation.ValidateContextData(turn.ContextData)
	if !cv.IsValid {
		return nil, &ValidationError{
			Code:    CodeInvalidContext,
			Message: "Context validation failed: " + strings.Join(cv.Errors, ", "),
		}
	}
	return &checkedTurn{
		userID:  userID,
		message: msg.SanitizedMessage,
		length:  len(raw),
		context: cv.SanitizedContext,
	}, nil
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	default:
		return false
	}
}

func nonNilStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilParams(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
