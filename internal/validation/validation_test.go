package validation

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/benvon/medvax-chat/internal/models"
)

func TestIsValidUUID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"v4 lowercase", "3f1c2a7e-9b4d-4c8e-a1f2-6d5e4c3b2a19", true},
		{"v4 uppercase", "3F1C2A7E-9B4D-4C8E-A1F2-6D5E4C3B2A19", true},
		{"v1", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"nil uuid", "00000000-0000-0000-0000-000000000000", true},
		{"anonymous token", "uuid_1718000000000_ab12cd34e", true},
		{"empty", "", false},
		{"wrong length", "3f1c2a7e-9b4d-4c8e-a1f2-6d5e4c3b2a1", false},
		{"no hyphens", "3f1c2a7e9b4d4c8ea1f26d5e4c3b2a19", false},
		{"braced", "{3f1c2a7e-9b4d-4c8e-a1f2-6d5e4c3b2a19}", false},
		{"urn form", "urn:uuid:3f1c2a7e-9b4d-4c8e-a1f2-6d5e4c3b2a19", false},
		{"wrong separators", "3f1c2a7e_9b4d_4c8e_a1f2_6d5e4c3b2a19", false},
		{"bad variant", "3f1c2a7e-9b4d-4c8e-c1f2-6d5e4c3b2a19", false},
		{"version zero", "3f1c2a7e-9b4d-0c8e-a1f2-6d5e4c3b2a19", false},
		{"non hex", "zf1c2a7e-9b4d-4c8e-a1f2-6d5e4c3b2a19", false},
		{"anonymous short suffix", "uuid_1718000000000_ab12cd34", false},
		{"anonymous long suffix", "uuid_1718000000000_ab12cd34ef", false},
		{"anonymous non digit time", "uuid_17180a0000000_ab12cd34e", false},
		{"anonymous symbol suffix", "uuid_1718000000000_ab12cd-4e", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidUUID(tt.id); got != tt.want {
				t.Errorf("IsValidUUID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestIsValidSessionID_RejectsAnonymousTokens(t *testing.T) {
	t.Parallel()

	if IsValidSessionID("uuid_1718000000000_ab12cd34e") {
		t.Error("anonymous token should not be a valid session id")
	}
	if !IsValidSessionID("3f1c2a7e-9b4d-4c8e-a1f2-6d5e4c3b2a19") {
		t.Error("uuid should be a valid session id")
	}
}

func TestValidateUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		msg           string
		wantValid     bool
		wantSanitized string
		wantErr       string
	}{
		{"plain", "hello", true, "hello", ""},
		{"strips tags", "hello <b>world</b>", true, "hello world", ""},
		{"exactly max length", strings.Repeat("a", 1000), true, strings.Repeat("a", 1000), ""},
		{"multibyte at max length", strings.Repeat("é", 1000), true, strings.Repeat("é", 1000), ""},
		{"empty", "", false, "", ErrMessageEmpty},
		{"whitespace kept", "   ", true, "   ", ""},
		{"only tags", "<b></b>", true, "", ""},
		{"line break tag", "<br>", true, "", ""},
		{"too long", strings.Repeat("a", 1001), false, "", ErrMessageTooLong},
		{"script tag", "<script>alert(1)</script>hello", false, "alert(1)hello", ErrMessageMalicious},
		{"javascript uri", "click JavaScript:alert(1)", false, "", ErrMessageMalicious},
		{"vbscript uri", "vbscript:msgbox", false, "", ErrMessageMalicious},
		{"event handler", `<img src=x onerror = "x">`, false, "", ErrMessageMalicious},
		{"data html", "data:text/html;base64,xx", false, "", ErrMessageMalicious},
		{"iframe", "<iframe src=x>", false, "", ErrMessageMalicious},
		{"object", "<OBJECT data=x>", false, "", ErrMessageMalicious},
		{"embed", "<embed src=x>", false, "", ErrMessageMalicious},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ValidateUserMessage(tt.msg)
			if got.IsValid != tt.wantValid {
				t.Fatalf("IsValid = %v, want %v (errors %v)", got.IsValid, tt.wantValid, got.Errors)
			}
			if tt.wantValid && got.SanitizedMessage != tt.wantSanitized {
				t.Errorf("SanitizedMessage = %q, want %q", got.SanitizedMessage, tt.wantSanitized)
			}
			if tt.wantErr != "" && !slices.Contains(got.Errors, tt.wantErr) {
				t.Errorf("Errors = %v, want to contain %q", got.Errors, tt.wantErr)
			}
			if tt.name == "script tag" && got.SanitizedMessage != tt.wantSanitized {
				t.Errorf("SanitizedMessage = %q, want %q", got.SanitizedMessage, tt.wantSanitized)
			}
		})
	}
}

func TestValidateContextData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     any
		wantValid bool
		want      models.ContextData
	}{
		{"nil", nil, true, models.ContextData{}},
		{"non object", []any{"a"}, true, models.ContextData{}},
		{"string", "context", true, models.ContextData{}},
		{
			name:      "scalars kept",
			input:     map[string]any{"city": "Lagos", "age": float64(30), "consent": true},
			wantValid: true,
			want:      models.ContextData{"city": "Lagos", "age": float64(30), "consent": true},
		},
		{
			name:      "long value dropped",
			input:     map[string]any{"a": strings.Repeat("x", 600)},
			wantValid: true,
			want:      models.ContextData{},
		},
		{
			name:      "long key dropped",
			input:     map[string]any{strings.Repeat("k", 51): "v", "ok": "v"},
			wantValid: true,
			want:      models.ContextData{"ok": "v"},
		},
		{
			name:      "nested values dropped",
			input:     map[string]any{"obj": map[string]any{"a": 1}, "arr": []any{1}, "null": nil, "ok": "v"},
			wantValid: true,
			want:      models.ContextData{"ok": "v"},
		},
		{
			name:      "markup counted unescaped",
			input:     htmlHeavyContext(12, 400),
			wantValid: true,
			want:      htmlHeavyContext(12, 400),
		},
		{
			name:      "oversized markup",
			input:     htmlHeavyContext(13, 400),
			wantValid: false,
			want:      models.ContextData{},
		},
		{
			name:      "oversized",
			input:     map[string]any{"a": strings.Repeat("x", 5000)},
			wantValid: false,
			want:      models.ContextData{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ValidateContextData(tt.input)
			if got.IsValid != tt.wantValid {
				t.Fatalf("IsValid = %v, want %v", got.IsValid, tt.wantValid)
			}
			if !tt.wantValid && !slices.Contains(got.Errors, ErrContextTooLarge) {
				t.Errorf("Errors = %v, want %q", got.Errors, ErrContextTooLarge)
			}
			if len(got.SanitizedContext) != len(tt.want) {
				t.Fatalf("SanitizedContext = %v, want %v", got.SanitizedContext, tt.want)
			}
			for k, v := range tt.want {
				if got.SanitizedContext[k] != v {
					t.Errorf("SanitizedContext[%q] = %v, want %v", k, got.SanitizedContext[k], v)
				}
			}
		})
	}
}

// htmlHeavyContext builds keys k00..kNN whose values are n '<' characters.
// Each entry serializes to n+8 bytes of plain JSON.
func htmlHeavyContext(keys, n int) models.ContextData {
	ctx := make(models.ContextData, keys)
	for i := range keys {
		ctx[fmt.Sprintf("k%02d", i)] = strings.Repeat("<", n)
	}
	return ctx
}

func TestPerformSecurityCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		meta        models.RequestMetadata
		suspicious  bool
		wantReasons int
	}{
		{"browser", models.RequestMetadata{IPAddress: "203.0.113.7", UserAgent: "Mozilla/5.0"}, false, 0},
		{"missing agent", models.RequestMetadata{IPAddress: "203.0.113.7"}, true, 1},
		{"unknown agent", models.RequestMetadata{IPAddress: "203.0.113.7", UserAgent: "unknown"}, true, 1},
		{"curl", models.RequestMetadata{IPAddress: "203.0.113.7", UserAgent: "curl/8.0"}, true, 1},
		{"bot case insensitive", models.RequestMetadata{IPAddress: "203.0.113.7", UserAgent: "GoogleBOT"}, true, 1},
		{"loopback v4", models.RequestMetadata{IPAddress: "127.0.0.1", UserAgent: "Mozilla/5.0"}, true, 1},
		{"loopback v6", models.RequestMetadata{IPAddress: "::1", UserAgent: "Mozilla/5.0"}, true, 1},
		{"everything wrong", models.RequestMetadata{IPAddress: "unknown", UserAgent: "python-requests"}, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := PerformSecurityCheck(tt.meta)
			if got.IsSuspicious != tt.suspicious {
				t.Errorf("IsSuspicious = %v, want %v", got.IsSuspicious, tt.suspicious)
			}
			if len(got.Reasons) != tt.wantReasons {
				t.Errorf("Reasons = %v, want %d entries", got.Reasons, tt.wantReasons)
			}
		})
	}
}

func TestValidate_ChatUserIDTag(t *testing.T) {
	t.Parallel()

	type payload struct {
		UserID string `validate:"required,chat_user_id"`
	}

	if err := Validate.Struct(payload{UserID: "uuid_1718000000000_ab12cd34e"}); err != nil {
		t.Errorf("valid user id rejected: %v", err)
	}
	err := Validate.Struct(payload{UserID: "not-an-id"})
	if err == nil {
		t.Fatal("invalid user id accepted")
	}
	if msgs := FieldErrors(err); len(msgs) != 1 || !strings.Contains(msgs[0], "chat_user_id") {
		t.Errorf("FieldErrors = %v", msgs)
	}
}
