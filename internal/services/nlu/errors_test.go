package nlu

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

func TestExtractAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantNil       bool
		wantProvider  string
		wantStatus    int
		wantPermanent bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "plain error", err: errors.New("boom"), wantNil: true},
		{
			name:         "google throttled",
			err:          fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusTooManyRequests, Message: "slow down"}),
			wantProvider: "google",
			wantStatus:   http.StatusTooManyRequests,
		},
		{
			name: "google quota",
			err: &googleapi.Error{
				Code:   http.StatusTooManyRequests,
				Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
			},
			wantProvider:  "google",
			wantStatus:    http.StatusTooManyRequests,
			wantPermanent: true,
		},
		{
			name:          "google bad request",
			err:           &googleapi.Error{Code: http.StatusBadRequest},
			wantProvider:  "google",
			wantStatus:    http.StatusBadRequest,
			wantPermanent: true,
		},
		{
			name:         "gemini server error",
			err:          fmt.Errorf("call: %w", genai.APIError{Code: 503, Status: "UNAVAILABLE"}),
			wantProvider: "gemini",
			wantStatus:   503,
		},
		{
			name:          "already normalized",
			err:           fmt.Errorf("x: %w", &APIError{Provider: "openai", StatusCode: 401, IsPermanent: true}),
			wantProvider:  "openai",
			wantStatus:    401,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractAPIError(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("ExtractAPIError() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("ExtractAPIError() = nil")
			}
			if got.Provider != tt.wantProvider || got.StatusCode != tt.wantStatus || got.IsPermanent != tt.wantPermanent {
				t.Errorf("ExtractAPIError() = %+v", got)
			}
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	t.Parallel()

	if !IsRateLimitError(&googleapi.Error{Code: http.StatusTooManyRequests}) {
		t.Error("429 should be a rate limit")
	}
	if !IsRateLimitError(errors.New("RESOURCE_EXHAUSTED: try later")) {
		t.Error("resource exhausted message should be a rate limit")
	}
	if IsRateLimitError(&googleapi.Error{Code: http.StatusInternalServerError}) {
		t.Error("500 is not a rate limit")
	}
	if IsRateLimitError(nil) {
		t.Error("nil is not a rate limit")
	}
}

func TestIsPermanentError(t *testing.T) {
	t.Parallel()

	if !IsPermanentError(ErrTrainingUnsupported) {
		t.Error("unsupported training is permanent")
	}
	if IsPermanentError(&googleapi.Error{Code: http.StatusServiceUnavailable}) {
		t.Error("503 is transient")
	}
	if IsPermanentError(errors.New("connection reset")) {
		t.Error("network errors are transient")
	}
}

func TestGetRetryDelay(t *testing.T) {
	t.Parallel()

	rateLimited := &googleapi.Error{Code: http.StatusTooManyRequests}
	transient := errors.New("connection reset")

	tests := []struct {
		err     error
		attempt int
		want    time.Duration
	}{
		{rateLimited, 0, time.Minute},
		{rateLimited, 2, 4 * time.Minute},
		{rateLimited, 10, 15 * time.Minute},
		{transient, 0, 5 * time.Second},
		{transient, 3, 40 * time.Second},
		{transient, 20, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := GetRetryDelay(tt.err, tt.attempt); got != tt.want {
			t.Errorf("GetRetryDelay(%v, %d) = %v, want %v", tt.err, tt.attempt, got, tt.want)
		}
	}
}
