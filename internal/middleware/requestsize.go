package middleware

import (
	"net/http"
)

// DefaultMaxRequestSize caps chat payloads at 1MB.
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize rejects bodies larger than maxBytes with 413. A declared
// Content-Length over the cap is refused before the handler runs; bodies of
// unknown length are cut off while the handler reads them, and the JSON
// decoders report that as REQUEST_TOO_LARGE too.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, CodeRequestTooLarge,
					"Request payload too large", "", nil)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
