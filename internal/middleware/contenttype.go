package middleware

import (
	"net/http"
	"strings"
)

// ContentType validates Content-Type headers for requests with bodies.
// Bodiless POSTs (e.g. /admin/cleanup) pass through.
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && r.ContentLength != 0 {
			contentType := r.Header.Get("Content-Type")

			if contentType == "" {
				writeError(w, http.StatusBadRequest, CodeMissingContentType, "Content-Type header is required", "", nil)
				return
			}

			if !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
				writeError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "Content-Type must be application/json", "", nil)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
