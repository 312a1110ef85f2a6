package nlu

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/benvon/medvax-chat/internal/logger"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiEngine detects intents with Google Gemini.
type GeminiEngine struct {
	client    *genai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewGeminiEngine creates a Gemini-backed engine. baseURL is only set in tests.
func NewGeminiEngine(ctx context.Context, apiKey, baseURL, model string, log *zap.Logger, debugMode bool) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if log == nil {
		log = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: DefaultTimeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiEngine{client: client, model: model, logger: log, debugMode: debugMode}, nil
}

// Name implements Engine.
func (e *GeminiEngine) Name() string { return "gemini" }

// DetectIntent implements Engine.
func (e *GeminiEngine) DetectIntent(ctx context.Context, q Query) (*Result, error) {
	prompt := buildLLMPrompt(q)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(llmSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	start := time.Now()
	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), cfg)
	latency := time.Since(start)
	if err != nil {
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to detect intent: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to detect intent: %w", err)
	}

	content := responseText(resp)
	if e.debugMode {
		e.logger.Debug("llm_api_response",
			zap.String("engine", e.Name()),
			zap.String("model", e.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", logger.SanitizeString(content, maxLLMPreview)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	if content == "" {
		return nil, ErrEmptyResult
	}
	return parseLLMReply(content)
}

// responseText joins the text parts of the first candidate, skipping thought summaries.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

var _ Engine = (*GeminiEngine)(nil)
