package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const defaultOllamaModel = "llama3.1"

// OllamaClient talks to a local or self-hosted Ollama server. The host is
// taken from OLLAMA_HOST.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a new Ollama client from the environment.
func NewOllamaClient(model string) (*OllamaClient, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaClient{client: client, model: model}, nil
}

// Name returns the provider name.
func (c *OllamaClient) Name() string {
	return "ollama"
}

// Complete sends a completion request.
func (c *OllamaClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	var out api.ChatResponse
	err := c.client.Chat(ctx, c.chatRequest(req), func(resp api.ChatResponse) error {
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CompletionResponse{
		Content:    out.Message.Content,
		Model:      out.Model,
		TokensIn:   out.PromptEvalCount,
		TokensOut:  out.EvalCount,
		StopReason: out.DoneReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// CompleteWithTools sends a completion request offering tools to the model.
func (c *OllamaClient) CompleteWithTools(ctx context.Context, req *CompletionRequest, tools []Tool) (*ToolResponse, error) {
	start := time.Now()

	chatReq := c.chatRequest(req)
	for _, t := range tools {
		chatReq.Tools = append(chatReq.Tools, ollamaTool(t))
	}

	var content strings.Builder
	var calls []api.ToolCall
	var model string
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		calls = append(calls, resp.Message.ToolCalls...)
		model = resp.Model
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &ToolResponse{
		Content:   content.String(),
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	for _, call := range calls {
		args, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			return nil, err
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name:      call.Function.Name,
			Arguments: string(args),
		})
	}
	return out, nil
}

func (c *OllamaClient) chatRequest(req *CompletionRequest) *api.ChatRequest {
	stream := false
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, api.Message{Role: msg.Role, Content: msg.Content})
	}

	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	return &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
}

func ollamaTool(t Tool) api.Tool {
	tool := api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        t.Name,
			Description: t.Description,
		},
	}
	tool.Function.Parameters.Type = "object"
	tool.Function.Parameters.Properties = make(map[string]api.ToolProperty, len(t.Params))
	for _, p := range t.Params {
		tool.Function.Parameters.Properties[p.Name] = api.ToolProperty{
			Type:        api.PropertyType{"string"},
			Description: p.Description,
		}
		if p.Required {
			tool.Function.Parameters.Required = append(tool.Function.Parameters.Required, p.Name)
		}
	}
	return tool
}
