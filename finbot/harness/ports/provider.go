package harnessports

import (
	"context"
)

// PromptMessage represents a single chat message in the role transcript.
// Assistant messages that request tools carry ToolCalls; tool-result
// messages carry the ToolCallID of the call they answer.
type PromptMessage struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // set on assistant messages requesting tools
	ToolCallID string     // set on tool-result messages
	ToolName   string     // set on tool-result messages
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // system instructions
	Messages []PromptMessage   // ordered role transcript
	Context  []string          // retrieved passages for RAG prompts
	Tools    []ToolSpec        // tool declarations available to the model
	Meta     map[string]string // lightweight metadata for tracing/caching keys
}

// Options controls sampling and limits for one provider call.
type Options struct {
	MaxTokens   int
	Temperature float32
	// ToolChoice: "auto" | "none" (if the provider supports it)
	ToolChoice string
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *Usage // optional usage information
}

// Provider is the abstraction for all LLM backends.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
