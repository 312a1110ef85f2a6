package nlu

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/services/gcp"
)

// Settings carries everything a Factory may need to build an engine.
type Settings struct {
	ProjectID       string
	CredentialsFile string
	APIKey          string
	BaseURL         string
	Model           string
	DebugMode       bool
	Logger          *zap.Logger
}

// Factory creates an engine from settings.
type Factory func(ctx context.Context, s Settings) (Engine, error)

// Registry maps provider names to engine factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Engine builds the engine registered under name.
func (r *Registry) Engine(ctx context.Context, name string, s Settings) (Engine, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, &ErrEngineNotFound{Name: name}
	}
	engine, err := factory(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %w", name, err)
	}
	return engine, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrEngineNotFound is returned when no factory is registered for a provider.
type ErrEngineNotFound struct {
	Name string
}

func (e *ErrEngineNotFound) Error() string {
	return "NLU engine not found: " + e.Name
}

// DefaultRegistry returns a registry with the dialogflow, openai and gemini engines.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("dialogflow", func(ctx context.Context, s Settings) (Engine, error) {
		opts, err := gcp.ClientOptions(ctx, s.CredentialsFile, "")
		if err != nil {
			return nil, err
		}
		return NewDialogflowEngine(ctx, s.ProjectID, s.Logger, opts...)
	})
	r.Register("openai", func(_ context.Context, s Settings) (Engine, error) {
		if s.APIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		return NewOpenAIEngine(s.APIKey, s.BaseURL, s.Model, s.Logger, s.DebugMode), nil
	})
	r.Register("gemini", func(ctx context.Context, s Settings) (Engine, error) {
		return NewGeminiEngine(ctx, s.APIKey, s.BaseURL, s.Model, s.Logger, s.DebugMode)
	})
	return r
}
