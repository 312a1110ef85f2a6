package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
	}{
		{name: "GET request", method: "GET", path: "/api/chatbot/health", handlerStatus: http.StatusOK},
		{name: "POST request", method: "POST", path: "/api/chatbot/chat", handlerStatus: http.StatusOK},
		{name: "404 request", method: "GET", path: "/notfound", handlerStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
				_, _ = w.Write([]byte("body"))
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected one http_request entry, got %d", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["status_code"] != int64(tt.handlerStatus) {
				t.Errorf("status_code = %v", fields["status_code"])
			}
			if fields["path"] != tt.path {
				t.Errorf("path = %v", fields["path"])
			}
			if fields["response_bytes"] != int64(4) {
				t.Errorf("response_bytes = %v", fields["response_bytes"])
			}
		})
	}
}

func TestLogging_RequestID(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	Logging(nil)(handler).ServeHTTP(w, req)
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("Expected generated request id, got %q", w.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	Logging(nil)(handler).ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected echoed request id, got %q", got)
	}
}

func TestLogging_ServerErrorsLogAtWarn(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.WriteHeader(http.StatusOK)
	})

	Logging(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/chatbot/admin/train", nil))

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one http_request entry, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("level = %v, want warn", entries[0].Level)
	}
	if entries[0].ContextMap()["status_code"] != int64(http.StatusBadGateway) {
		t.Errorf("status_code = %v, want first status written", entries[0].ContextMap()["status_code"])
	}
}
