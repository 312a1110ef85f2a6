package nlu

import (
	"errors"
	"strings"
	"testing"

	"github.com/benvon/medvax-chat/internal/models"
)

func TestBuildLLMPrompt(t *testing.T) {
	t.Parallel()

	prompt := buildLLMPrompt(Query{
		SessionID: "session-1",
		Text:      "I need my flu shot",
		Context:   models.ContextData{"vaccine": "flu", "age": float64(42)},
	})

	for _, want := range []string{
		"Conversation: session-1",
		"Reply language: en",
		"- age: 42\n- vaccine: flu",
		"User message: I need my flu shot",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildLLMPrompt_NoContext(t *testing.T) {
	t.Parallel()

	prompt := buildLLMPrompt(Query{SessionID: "s", Text: "hola", LanguageCode: "es"})
	if strings.Contains(prompt, "Known context") {
		t.Errorf("prompt should omit empty context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Reply language: es") {
		t.Errorf("prompt should carry language:\n%s", prompt)
	}
}

func TestParseLLMReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
		check   func(t *testing.T, r *Result)
	}{
		{
			name:    "plain json",
			content: `{"text":"Booked","intent":"book_appointment","confidence":0.9,"parameters":{"date":"tomorrow"},"action":"book","all_required_params_present":false,"context":{"date":"tomorrow","empty":""}}`,
			check: func(t *testing.T, r *Result) {
				if r.Intent != "book_appointment" || r.Confidence != 0.9 || r.Action != "book" {
					t.Errorf("unexpected result %+v", r)
				}
				if r.AllRequiredParamsPresent {
					t.Error("AllRequiredParamsPresent should be false")
				}
				if r.Parameters["date"] != "tomorrow" {
					t.Errorf("Parameters = %v", r.Parameters)
				}
				if len(r.OutputContext) != 1 || r.OutputContext["date"] != "tomorrow" {
					t.Errorf("OutputContext = %v", r.OutputContext)
				}
			},
		},
		{
			name:    "wrapped in prose",
			content: "Sure! ```json\n{\"text\":\"Hi\",\"confidence\":3}\n``` hope that helps",
			check: func(t *testing.T, r *Result) {
				if r.Text != "Hi" {
					t.Errorf("Text = %q", r.Text)
				}
				if r.Intent != "unknown" {
					t.Errorf("Intent = %q, want unknown", r.Intent)
				}
				if r.Confidence != 1 {
					t.Errorf("Confidence = %v, want clamped to 1", r.Confidence)
				}
				if !r.AllRequiredParamsPresent {
					t.Error("AllRequiredParamsPresent should default to true")
				}
				if r.Parameters == nil || r.OutputContext == nil {
					t.Error("maps should be non-nil")
				}
			},
		},
		{
			name:    "empty text",
			content: `{"text":"  ","intent":"greeting"}`,
			wantErr: ErrEmptyResult,
		},
		{
			name:    "not json",
			content: "I cannot help with that",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := parseLLMReply(tt.content)
			if tt.check == nil {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, r)
		})
	}
}
