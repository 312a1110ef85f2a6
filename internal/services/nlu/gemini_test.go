package nlu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewGeminiEngine_RequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewGeminiEngine(context.Background(), "", "", "", nil, false); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestGeminiEngine_DetectIntent(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {
					"role": "model",
					"parts": [
						{"text": "thinking about vaccines", "thought": true},
						{"text": "{\"text\":\"Flu shots are available daily.\",\"intent\":\"vaccine.availability\",\"confidence\":0.7}"}
					]
				}
			}]
		}`))
	}))
	defer srv.Close()

	engine, err := NewGeminiEngine(context.Background(), "test-key", srv.URL, "", nil, true)
	if err != nil {
		t.Fatalf("NewGeminiEngine() error = %v", err)
	}

	res, err := engine.DetectIntent(context.Background(), Query{SessionID: "s1", Text: "flu shot?"})
	if err != nil {
		t.Fatalf("DetectIntent() error = %v", err)
	}
	if !strings.HasSuffix(gotPath, "models/"+DefaultGeminiModel+":generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	genCfg, _ := gotBody["generationConfig"].(map[string]any)
	if genCfg["responseMimeType"] != "application/json" {
		t.Errorf("generationConfig = %v", gotBody["generationConfig"])
	}
	if res.Intent != "vaccine.availability" || res.Text != "Flu shots are available daily." {
		t.Errorf("result = %+v", res)
	}
}

func TestGeminiEngine_DetectIntent_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer srv.Close()

	engine, err := NewGeminiEngine(context.Background(), "test-key", srv.URL, "gemini-test", nil, false)
	if err != nil {
		t.Fatalf("NewGeminiEngine() error = %v", err)
	}
	_, err = engine.DetectIntent(context.Background(), Query{SessionID: "s1", Text: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsPermanentError(err) {
		t.Errorf("503 should be transient: %v", err)
	}
}
