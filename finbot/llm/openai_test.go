package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbot-ai/finbot/finbot/config"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(config.LLMConfig{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		Model:       "gpt-4o",
		Temperature: 0.2,
		MaxTokens:   150,
		Timeout:     5 * time.Second,
	}, zerolog.Nop())
}

func TestCompleteTextResponse(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"choices": [{"message": {"role": "assistant", "content": "AAPL closed at 182.52."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 9, "total_tokens": 49}
		}`)
	})

	out, err := client.Complete(context.Background(), harnessports.PromptInput{
		System:   "You are a financial assistant.",
		Messages: []harnessports.PromptMessage{{Role: "user", Content: "What did AAPL close at?"}},
	}, harnessports.Options{Temperature: 0.2, MaxTokens: 150})
	require.NoError(t, err)

	assert.Equal(t, "AAPL closed at 182.52.", out.Text)
	assert.Empty(t, out.ToolCalls)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 49, out.Usage.TotalTokens)

	// System instructions travel as the leading message.
	msgs := captured["messages"].([]any)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "gpt-4o", captured["model"])
	assert.InDelta(t, 0.2, captured["temperature"], 1e-6)
	assert.EqualValues(t, 150, captured["max_tokens"])
}

func TestCompleteToolCallResponse(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"choices": [{"message": {"role": "assistant", "content": "", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "get_stock_info", "arguments": "{\"stock_name\":\"AAPL\"}"}}
			]}, "finish_reason": "tool_calls"}]
		}`)
	})

	spec := harnessports.ToolSpec{
		Name:        "get_stock_info",
		Description: "Look up price and volatility for a stock.",
		JSONSchema:  []byte(`{"type":"object","properties":{"stock_name":{"type":"string"}},"required":["stock_name"]}`),
	}
	out, err := client.Complete(context.Background(), harnessports.PromptInput{
		Messages: []harnessports.PromptMessage{{Role: "user", Content: "Should I buy AAPL?"}},
		Tools:    []harnessports.ToolSpec{spec},
	}, harnessports.Options{})
	require.NoError(t, err)

	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.Equal(t, "get_stock_info", out.ToolCalls[0].Name)
	assert.JSONEq(t, `{"stock_name":"AAPL"}`, string(out.ToolCalls[0].Args))

	// Tool declarations travel in OpenAI function format.
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "get_stock_info", fn["name"])
	params := fn["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
}

func TestCompleteOmitsToolsWhenChoiceIsNone(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices": [{"message": {"role": "assistant", "content": "Done."}}]}`)
	})

	_, err := client.Complete(context.Background(), harnessports.PromptInput{
		Messages: []harnessports.PromptMessage{{Role: "user", Content: "hello"}},
		Tools:    []harnessports.ToolSpec{{Name: "get_stock_info", JSONSchema: []byte(`{}`)}},
	}, harnessports.Options{ToolChoice: "none"})
	require.NoError(t, err)

	_, hasTools := captured["tools"]
	assert.False(t, hasTools)
}

func TestCompleteRoundTripsToolResults(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices": [{"message": {"role": "assistant", "content": "The price is 182.52."}}]}`)
	})

	_, err := client.Complete(context.Background(), harnessports.PromptInput{
		Messages: []harnessports.PromptMessage{
			{Role: "user", Content: "Price of AAPL?"},
			{Role: "assistant", ToolCalls: []harnessports.ToolCall{
				{ID: "call_1", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
			}},
			{Role: "tool", Content: "The stock price is: 182.52", ToolCallID: "call_1", ToolName: "get_stock_info"},
		},
	}, harnessports.Options{})
	require.NoError(t, err)

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 3)

	assistant := msgs[1].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].(map[string]any)["id"])

	toolMsg := msgs[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	assert.Equal(t, "get_stock_info", toolMsg["name"])
}

func TestCompleteAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"type": "invalid_request_error", "message": "Incorrect API key provided"}}`)
	})

	_, err := client.Complete(context.Background(), harnessports.PromptInput{
		Messages: []harnessports.PromptMessage{{Role: "user", Content: "hi"}},
	}, harnessports.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api error 401")
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestCompleteEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices": []}`)
	})

	_, err := client.Complete(context.Background(), harnessports.PromptInput{
		Messages: []harnessports.PromptMessage{{Role: "user", Content: "hi"}},
	}, harnessports.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response choices")
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.EqualValues(t, 768, req["dimensions"])
		// Out-of-order data entries must still land at their index.
		io.WriteString(w, `{"data": [
			{"index": 1, "embedding": [0.4, 0.5]},
			{"index": 0, "embedding": [0.1, 0.2]}
		]}`)
	}))
	t.Cleanup(srv.Close)

	client := NewEmbeddingClient(config.EmbeddingConfig{
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
		Dims:    768,
		Timeout: 5 * time.Second,
	}, zerolog.Nop())

	vectors, err := client.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.4, 0.5}, vectors[1])
	assert.Equal(t, 768, client.Dimension())
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": [{"index": 0, "embedding": [0.1]}]}`)
	}))
	t.Cleanup(srv.Close)

	client := NewEmbeddingClient(config.EmbeddingConfig{
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
		Dims:    768,
		Timeout: 5 * time.Second,
	}, zerolog.Nop())

	_, err := client.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestEmbedEmptyInput(t *testing.T) {
	client := NewEmbeddingClient(config.EmbeddingConfig{BaseURL: "http://unused", Dims: 8}, zerolog.Nop())
	vectors, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
