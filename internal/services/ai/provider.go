package ai

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Tool describes one callable function exposed to the model, in the common
// JSON-schema function format.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is one user turn. Text already carries any injected context.
type ChatRequest struct {
	UserID   uuid.UUID
	System   string
	Text     string
	Remember bool
	Tools    []Tool
}

// ToolExecutor runs one tool call and returns its JSON-encoded result.
type ToolExecutor func(ctx context.Context, name string, args json.RawMessage) (string, error)

// Provider is the interface for chat model backends. Chat drives the whole
// exchange including the tool loop: whenever the model requests tool calls
// the provider runs them through exec and feeds the results back, until the
// model produces a final text reply.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req *ChatRequest, exec ToolExecutor) (string, error)
}

// maxToolRounds bounds the tool loop so a confused model can't spin forever.
const maxToolRounds = 5

// ProviderFactory creates a provider from string config.
type ProviderFactory func(config map[string]string) (Provider, error)

// ProviderRegistry stores available providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, config map[string]string) (Provider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return factory(config)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
