package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds a request when no timeout is configured.
const DefaultRequestTimeout = 30 * time.Second

// Timeout answers 503 REQUEST_TIMEOUT when a handler runs past timeout and
// cancels its context. The Swagger UI under /docs/ is served without a limit
// since http.TimeoutHandler buffers whole responses.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	body, _ := json.Marshal(ErrorResponse{
		Error: "Request timed out. Please try again.",
		Code:  CodeRequestTimeout,
	})

	return func(next http.Handler) http.Handler {
		limited := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/docs/") {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
