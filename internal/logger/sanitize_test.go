package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		maxLength int
		want      string
	}{
		{"empty", "", 10, ""},
		{"plain", "hello", 10, "hello"},
		{"strips newlines", "user\nINFO forged", 100, "userINFO forged"},
		{"strips control", "a\x00b\x1bc", 100, "abc"},
		{"keeps tab", "a\tb", 100, "a\tb"},
		{"truncates", "abcdefghij", 4, "abcd..."},
		{"invalid utf8", "ok\xffok", 100, "okok"},
		{"default max", strings.Repeat("a", 10), 0, strings.Repeat("a", 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeString(tt.input, tt.maxLength); got != tt.want {
				t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.input, tt.maxLength, got, tt.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	if got := SanitizeError(nil); got != "" {
		t.Errorf("SanitizeError(nil) = %q, want empty", got)
	}
	if got := SanitizeError(errors.New("boom\nline")); got != "boomline" {
		t.Errorf("SanitizeError() = %q", got)
	}
}

func TestSanitizeUserID_Truncates(t *testing.T) {
	t.Parallel()

	got := SanitizeUserID(strings.Repeat("u", MaxUserIDLength+10))
	if len(got) != MaxUserIDLength+3 {
		t.Errorf("len = %d, want %d", len(got), MaxUserIDLength+3)
	}
}

func TestNew_AttachesService(t *testing.T) {
	t.Parallel()

	log, err := New(Options{Service: "chat-server"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if log == nil {
		t.Fatal("New() returned nil logger")
	}
	_ = Sync(log)
}
