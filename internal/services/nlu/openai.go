package nlu

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/logger"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second
)

// OpenAIEngine detects intents with an OpenAI-compatible chat completions API.
type OpenAIEngine struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIEngine creates an engine for the given key, base URL and model.
// Empty baseURL and model fall back to the OpenAI defaults.
func NewOpenAIEngine(apiKey, baseURL, model string, log *zap.Logger, debugMode bool) *OpenAIEngine {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: DefaultTimeout}),
		// The gateway falls back immediately; retries would only delay the reply.
		option.WithMaxRetries(0),
	)

	return &OpenAIEngine{
		client:    client,
		model:     model,
		logger:    log,
		debugMode: debugMode,
	}
}

// Name implements Engine.
func (e *OpenAIEngine) Name() string { return "openai" }

// DetectIntent implements Engine.
func (e *OpenAIEngine) DetectIntent(ctx context.Context, q Query) (*Result, error) {
	prompt := buildLLMPrompt(q)
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(llmSystemPrompt),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	if e.debugMode {
		e.logger.Debug("llm_api_request",
			zap.String("engine", e.Name()),
			zap.String("model", e.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("session_id", q.SessionID),
		)
	}

	start := time.Now()
	resp, err := e.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if e.debugMode {
			e.logger.Debug("llm_api_error",
				zap.String("engine", e.Name()),
				zap.String("model", e.model),
				zap.Error(err),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to detect intent: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to detect intent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResult
	}

	content := resp.Choices[0].Message.Content
	if e.debugMode {
		e.logger.Debug("llm_api_response",
			zap.String("engine", e.Name()),
			zap.String("model", e.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", logger.SanitizeString(content, maxLLMPreview)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return parseLLMReply(content)
}

var _ Engine = (*OpenAIEngine)(nil)
