package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOpenAI(t *testing.T, reply map[string]interface{}, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIComplete(t *testing.T) {
	var body map[string]interface{}
	srv := fakeOpenAI(t, map[string]interface{}{
		"id":    "cmpl-1",
		"model": "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": "a calm summary"},
		}},
		"usage": map[string]interface{}{"prompt_tokens": 12, "completion_tokens": 4},
	}, &body)

	client, err := NewOpenAIClient("sk-test", srv.URL, "")
	require.NoError(t, err)

	resp, err := client.Complete(t.Context(), &CompletionRequest{
		System:   "summarize",
		Messages: []ChatMessage{{Role: "user", Content: "journal text"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "a calm summary", resp.Content)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, "stop", resp.StopReason)

	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "summarize", msgs[0].(map[string]interface{})["content"])
	assert.Equal(t, defaultOpenAIModel, body["model"])
}

func TestOpenAICompleteWithTools(t *testing.T) {
	var body map[string]interface{}
	srv := fakeOpenAI(t, map[string]interface{}{
		"id":    "cmpl-2",
		"model": "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "tool_calls",
			"message": map[string]interface{}{
				"role": "assistant",
				"tool_calls": []map[string]interface{}{{
					"id":   "call_1",
					"type": "function",
					"function": map[string]interface{}{
						"name":      "search",
						"arguments": `{"query":"sleep hygiene"}`,
					},
				}},
			},
		}},
	}, &body)

	client, err := NewOpenAIClient("sk-test", srv.URL, "gpt-4o")
	require.NoError(t, err)

	resp, err := client.CompleteWithTools(t.Context(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "context"}},
	}, []Tool{{
		Name:        "search",
		Description: "web search",
		Params:      []ToolParam{{Name: "query", Description: "terms", Required: true}},
	}})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "search", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"sleep hygiene"}`, resp.ToolCalls[0].Arguments)

	tools := body["tools"].([]interface{})
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "search", fn["name"])
	assert.Equal(t, "gpt-4o", body["model"])
}

func TestToolJSONSchema(t *testing.T) {
	tool := Tool{
		Name: "search",
		Params: []ToolParam{
			{Name: "query", Required: true},
			{Name: "lang"},
		},
	}

	schema := tool.jsonSchema()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"query"}, schema["required"])
	props := schema["properties"].(map[string]interface{})
	assert.Len(t, props, 2)
}

func TestOllamaToolShape(t *testing.T) {
	tool := ollamaTool(Tool{
		Name:   "search",
		Params: []ToolParam{{Name: "query", Description: "terms", Required: true}},
	})

	assert.Equal(t, "function", tool.Type)
	assert.Equal(t, "object", tool.Function.Parameters.Type)
	assert.Equal(t, []string{"query"}, tool.Function.Parameters.Required)
	assert.Contains(t, tool.Function.Parameters.Properties, "query")
}

func TestNewClientErrors(t *testing.T) {
	_, err := NewClient("mystery", Options{})
	assert.Error(t, err)

	_, err = NewClient(ProviderOpenAI, Options{})
	assert.Error(t, err)

	_, err = NewClient(ProviderAnthropic, Options{})
	assert.Error(t, err)
}

func TestNewClientForPicksProviderKey(t *testing.T) {
	keys := Keys{OpenAI: "sk-test"}

	client, err := NewClientFor(ProviderOpenAI, keys, "")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())

	_, err = NewClientFor(ProviderAnthropic, keys, "")
	assert.Error(t, err)
}

func TestProvidersImplementClient(t *testing.T) {
	var _ Client = (*OpenAIClient)(nil)
	var _ Client = (*AnthropicClient)(nil)
	var _ Client = (*OllamaClient)(nil)

	client, err := NewClient(ProviderOllama, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ollama", client.Name())
}
