// Package llm provides clients for OpenAI-compatible chat-completion and
// embedding endpoints. Groq and local servers exposing the same wire format
// work by pointing base_url at them.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/finbot-ai/finbot/finbot/config"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// OpenAIClient implements harnessports.Provider against the
// /chat/completions endpoint.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  zerolog.Logger
}

var _ harnessports.Provider = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg config.LLMConfig, logger zerolog.Logger) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With().Str("component", "llm").Str("model", cfg.Model).Logger(),
	}
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the transcript to the chat-completions endpoint and maps the
// first choice back onto the harness completion type.
func (c *OpenAIClient) Complete(ctx context.Context, in harnessports.PromptInput, opts harnessports.Options) (harnessports.Completion, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    buildMessages(in),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if len(in.Tools) > 0 && opts.ToolChoice != "none" {
		reqBody.Tools = buildTools(in.Tools)
		if opts.ToolChoice != "" {
			reqBody.ToolChoice = opts.ToolChoice
		}
	}

	var apiResp chatResponse
	if err := c.post(ctx, "/chat/completions", reqBody, &apiResp); err != nil {
		return harnessports.Completion{}, err
	}
	if len(apiResp.Choices) == 0 {
		return harnessports.Completion{}, fmt.Errorf("empty response choices")
	}

	choice := apiResp.Choices[0]
	out := harnessports.Completion{
		Text: choice.Message.Content,
		Usage: &harnessports.Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, harnessports.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func buildMessages(in harnessports.PromptInput) []chatMessage {
	msgs := make([]chatMessage, 0, len(in.Messages)+2)
	if in.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: in.System})
	}
	if len(in.Context) > 0 {
		msgs = append(msgs, chatMessage{
			Role:    "system",
			Content: "Relevant context:\n\n" + strings.Join(in.Context, "\n\n"),
		})
	}
	for _, m := range in.Messages {
		wm := chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(tc.Args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		msgs = append(msgs, wm)
	}
	return msgs
}

func buildTools(specs []harnessports.ToolSpec) []wireTool {
	tools := make([]wireTool, 0, len(specs))
	for _, s := range specs {
		var t wireTool
		t.Type = "function"
		t.Function.Name = s.Name
		t.Function.Description = s.Description
		t.Function.Parameters = json.RawMessage(s.JSONSchema)
		tools = append(tools, t)
	}
	return tools
}

func (c *OpenAIClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("api error %d: %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
