package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("chat_user_id", validateChatUserID); err != nil {
		panic(fmt.Sprintf("failed to register chat_user_id validator: %v", err))
	}
	if err := Validate.RegisterValidation("session_id", validateSessionID); err != nil {
		panic(fmt.Sprintf("failed to register session_id validator: %v", err))
	}
}

// validateChatUserID accepts a UUID or an anonymous user token.
func validateChatUserID(fl validator.FieldLevel) bool {
	return IsValidUUID(fl.Field().String())
}

func validateSessionID(fl validator.FieldLevel) bool {
	return IsValidSessionID(fl.Field().String())
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// FieldErrors flattens validator errors into short human-readable messages.
func FieldErrors(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return out
}
