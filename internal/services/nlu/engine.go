package nlu

import (
	"context"

	"github.com/benvon/medvax-chat/internal/models"
)

// DefaultLanguageCode is the working language of the agent.
const DefaultLanguageCode = "en"

// Query is one user utterance sent to an engine.
type Query struct {
	SessionID    string
	Text         string
	LanguageCode string
	// Context is the session's dialogue state, caller slots merged in.
	Context models.ContextData
}

// Result is what an engine extracted from an utterance.
type Result struct {
	Text       string
	Intent     string
	Confidence float64
	// OutputContext holds string slots the engine wants carried to the next turn.
	OutputContext            map[string]string
	Parameters               map[string]any
	Action                   string
	AllRequiredParamsPresent bool
}

// Engine maps free text to an intent and a reply.
type Engine interface {
	// Name identifies the engine in logs and traces.
	Name() string
	// DetectIntent runs one dialogue turn within the given session.
	DetectIntent(ctx context.Context, q Query) (*Result, error)
}

// IntentTrainer is implemented by engines whose agent can learn new intents at runtime.
type IntentTrainer interface {
	CreateIntent(ctx context.Context, req *models.TrainIntentRequest) (*models.TrainIntentResult, error)
}
