package nlu

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

var (
	// ErrEmptyResult is returned when an engine answers without a usable reply.
	ErrEmptyResult = errors.New("engine returned an empty result")
	// ErrTrainingUnsupported is returned when the configured engine cannot learn intents.
	ErrTrainingUnsupported = errors.New("engine does not support intent training")
)

// APIError is a provider error normalized across the Google and OpenAI SDKs.
type APIError struct {
	Provider   string
	StatusCode int
	Status     string
	Message    string
	// IsPermanent is set for quota exhaustion and request errors that will not succeed on retry.
	IsPermanent bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d %s): %s", e.Provider, e.StatusCode, e.Status, e.Message)
}

// ExtractAPIError pulls status details out of an SDK error. It returns nil
// when err did not come from a provider API.
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		out := &APIError{Provider: "google", StatusCode: gErr.Code, Message: gErr.Message}
		for _, item := range gErr.Errors {
			if item.Reason == "quotaExceeded" || item.Reason == "dailyLimitExceeded" {
				out.IsPermanent = true
			}
		}
		out.IsPermanent = out.IsPermanent || isPermanentStatus(gErr.Code)
		return out
	}

	var oErr *openai.Error
	if errors.As(err, &oErr) {
		return &APIError{
			Provider:    "openai",
			StatusCode:  oErr.StatusCode,
			Status:      oErr.Type,
			Message:     oErr.Message,
			IsPermanent: oErr.Code == "insufficient_quota" || isPermanentStatus(oErr.StatusCode),
		}
	}

	var genErr genai.APIError
	if errors.As(err, &genErr) {
		return &APIError{
			Provider:    "gemini",
			StatusCode:  genErr.Code,
			Status:      genErr.Status,
			Message:     genErr.Message,
			IsPermanent: isPermanentStatus(genErr.Code),
		}
	}
	return nil
}

// isPermanentStatus reports client errors other than throttling and timeouts.
func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 &&
		code != http.StatusTooManyRequests &&
		code != http.StatusRequestTimeout
}

// IsRateLimitError checks if an error is a provider rate limit
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if apiErr := ExtractAPIError(err); apiErr != nil {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "resource_exhausted")
}

// IsPermanentError reports whether retrying err is pointless.
func IsPermanentError(err error) bool {
	if errors.Is(err, ErrTrainingUnsupported) {
		return true
	}
	apiErr := ExtractAPIError(err)
	return apiErr != nil && apiErr.IsPermanent
}

// GetRetryDelay calculates the delay before retrying a failed provider call.
func GetRetryDelay(err error, attempt int) time.Duration {
	shift := min(max(attempt, 0), 10)

	if IsRateLimitError(err) {
		// Rate limits: exponential backoff starting at 60 seconds
		return min(60*time.Second*time.Duration(1<<shift), 15*time.Minute)
	}
	// Default: exponential backoff starting at 5 seconds
	return min(5*time.Second*time.Duration(1<<shift), 5*time.Minute)
}
