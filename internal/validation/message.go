package validation

import (
	"bytes"
	"encoding/json"
	"regexp"
	"unicode/utf8"

	"github.com/benvon/medvax-chat/internal/models"
)

const (
	// MaxMessageLength is the longest chat message accepted, in characters.
	MaxMessageLength = 1000
	// MaxContextBytes caps the serialized size of caller-supplied context.
	MaxContextBytes = 5000
	// MaxContextKeyLength caps a context key, in characters.
	MaxContextKeyLength = 50
	// MaxContextValueLength caps a string context value, in characters.
	MaxContextValueLength = 500
)

const (
	ErrMessageEmpty     = "Message must be a non-empty string"
	ErrMessageTooLong   = "Message too long (max 1000 characters)"
	ErrMessageMalicious = "Message contains potentially malicious content"
	ErrContextTooLarge  = "Context data too large (max 5KB)"
)

var (
	suspiciousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script\b`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)data:text/html`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)<iframe`),
		regexp.MustCompile(`(?i)<object`),
		regexp.MustCompile(`(?i)<embed`),
	}

	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
)

// MessageValidation is the result of ValidateUserMessage.
type MessageValidation struct {
	IsValid          bool
	SanitizedMessage string
	Errors           []string
}

// ContextValidation is the result of ValidateContextData.
type ContextValidation struct {
	IsValid          bool
	SanitizedContext models.ContextData
	Errors           []string
}

// ValidateUserMessage checks a chat message for length and injection patterns
// and strips HTML tags from it. Only the empty string is rejected as empty;
// whitespace or markup alone passes through sanitized.
func ValidateUserMessage(msg string) MessageValidation {
	if msg == "" {
		return MessageValidation{Errors: []string{ErrMessageEmpty}}
	}

	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return MessageValidation{Errors: []string{ErrMessageTooLong}}
	}

	result := MessageValidation{IsValid: true}
	for _, p := range suspiciousPatterns {
		if p.MatchString(msg) {
			result.IsValid = false
			result.Errors = append(result.Errors, ErrMessageMalicious)
			break
		}
	}

	result.SanitizedMessage = htmlTagPattern.ReplaceAllString(msg, "")
	return result
}

// ValidateContextData keeps the scalar entries of a context object. Input that is
// not a JSON object is treated as an empty context. Oversized input is rejected;
// entries with long keys, long strings, or non-scalar values are dropped.
func ValidateContextData(raw any) ContextValidation {
	result := ContextValidation{IsValid: true, SanitizedContext: models.ContextData{}}

	var entries map[string]any
	switch v := raw.(type) {
	case map[string]any:
		entries = v
	case models.ContextData:
		entries = v
	default:
		return result
	}

	size, err := serializedSize(entries)
	if err != nil || size > MaxContextBytes {
		result.IsValid = false
		result.Errors = append(result.Errors, ErrContextTooLarge)
		return result
	}

	for key, value := range entries {
		if utf8.RuneCountInString(key) > MaxContextKeyLength {
			continue
		}
		if scalar, ok := contextScalar(value); ok {
			result.SanitizedContext[key] = scalar
		}
	}
	return result
}

// serializedSize is the length of v as plain JSON, without the HTML escaping
// json.Marshal applies to <, > and &.
func serializedSize(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return len(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func contextScalar(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		if utf8.RuneCountInString(v) > MaxContextValueLength {
			return nil, false
		}
		return v, true
	case bool:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v, true
	default:
		return nil, false
	}
}
