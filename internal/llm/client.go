// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"fmt"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// ToolParam describes one string-typed tool argument.
type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// Tool is a function the model may call instead of answering in text.
type Tool struct {
	Name        string
	Description string
	Params      []ToolParam
}

// ToolCall is a structured invocation emitted by the model.
// Arguments is the JSON-encoded argument object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResponse is the result of a tool-augmented completion.
type ToolResponse struct {
	Content   string
	ToolCalls []ToolCall
	Model     string
	LatencyMs int64
}

// Completer is the narrow capability used for plain completions.
type Completer interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// ToolCompleter is the narrow capability used for tool-augmented completions.
type ToolCompleter interface {
	CompleteWithTools(ctx context.Context, req *CompletionRequest, tools []Tool) (*ToolResponse, error)
}

// Client is the interface for LLM providers.
type Client interface {
	Completer
	ToolCompleter

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// Options configures NewClient.
type Options struct {
	APIKey string
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways, tests).
	BaseURL string
	Model   string
}

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, opts Options) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey, opts.Model)
	case ProviderOpenAI:
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.Model)
	case ProviderOllama:
		return NewOllamaClient(opts.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// Keys holds credentials for every provider.
type Keys struct {
	Anthropic     string
	OpenAI        string
	OpenAIBaseURL string
}

// NewClientFor creates a client for provider using the matching key from keys.
func NewClientFor(provider Provider, keys Keys, model string) (Client, error) {
	opts := Options{Model: model}
	switch provider {
	case ProviderAnthropic:
		opts.APIKey = keys.Anthropic
	case ProviderOpenAI:
		opts.APIKey = keys.OpenAI
		opts.BaseURL = keys.OpenAIBaseURL
	}
	return NewClient(provider, opts)
}

// jsonSchema renders tool params as a JSON-schema object.
func (t Tool) jsonSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(t.Params))
	required := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		props[p.Name] = map[string]interface{}{
			"type":        "string",
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
