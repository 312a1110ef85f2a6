package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const (
	codeInternalError  = "INTERNAL_ERROR"
	codeInvalidRequest = "INVALID_REQUEST"
	codeMissingUserID  = "MISSING_USER_ID"
	codeInvalidUserID  = "INVALID_USER_ID"
	codeTooLarge       = "REQUEST_TOO_LARGE"
)

// errorBody is the error envelope every chatbot endpoint answers with.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RouteWrapper wraps a single route's handler, e.g. with a per-route rate limit.
type RouteWrapper func(route string) func(http.Handler) http.Handler

func (wrap RouteWrapper) apply(route string, h http.HandlerFunc) http.Handler {
	if wrap == nil {
		return h
	}
	return wrap(route)(h)
}

// respondJSON sends body as-is.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondSuccess wraps data in the admin envelope.
func respondSuccess(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// sanitizeErrorMessage caps the length of client-facing error text.
func sanitizeErrorMessage(message string) string {
	if len(message) > 200 {
		return message[:200] + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with a sanitized message
func respondJSONError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorBody{Error: sanitizeErrorMessage(message), Code: code})
}

// decodeJSON decodes the request body into dst, answering 400 or 413 itself
// when it cannot. It reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, codeTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		respondJSONError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return false
	}
	return true
}

func pathUserID(r *http.Request) string {
	return mux.Vars(r)["userId"]
}
