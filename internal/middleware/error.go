package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/request"
)

// Error codes written by the middleware chain.
const (
	CodeInternalError      = "INTERNAL_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeUnsupportedMedia   = "UNSUPPORTED_MEDIA_TYPE"
	CodeMissingContentType = "MISSING_CONTENT_TYPE"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
	CodeRequestTimeout     = "REQUEST_TIMEOUT"
)

// ErrorResponse is the body every chatbot endpoint uses for failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ErrorHandler recovers panics from the handler chain and answers 500 with
// INTERNAL_ERROR. When the handler had already written part of a response the
// panic is only logged.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic_recovered",
					zap.Any("error", rec),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("client_ip", request.ClientIP(r)),
					zap.Bool("response_started", tw.wrote),
					zap.Stack("stack"),
				)
				if !tw.wrote {
					writeError(w, http.StatusInternalServerError, CodeInternalError,
						"Internal Server Error", "An unexpected error occurred", logger)
				}
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

// writeError sends an ErrorResponse.
func writeError(w http.ResponseWriter, status int, code, errorText, message string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: errorText, Code: code, Message: message}); err != nil && logger != nil {
		logger.Error("failed_to_encode_error_response",
			zap.Error(err),
			zap.Int("status_code", status),
		)
	}
}
