package harness

import (
	"strings"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// PromptBuilder assembles model-ready inputs from system text, messages, and tools.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build flattens system + chat messages into a Provider PromptInput.
// Newlines are normalized and whitespace trimmed so identical conversations
// produce identical cache keys.
func (b *PromptBuilder) Build(system string, messages []harnessports.PromptMessage, contextSnippets []string, toolSpecs []harnessports.ToolSpec, meta map[string]string) harnessports.PromptInput {
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	normalized := make([]harnessports.PromptMessage, len(messages))
	copy(normalized, messages)
	for i := range normalized {
		normalized[i].Content = norm(normalized[i].Content)
	}
	snippets := make([]string, len(contextSnippets))
	for i := range contextSnippets {
		snippets[i] = norm(contextSnippets[i])
	}

	return harnessports.PromptInput{
		System:   norm(system),
		Messages: normalized,
		Context:  snippets,
		Tools:    toolSpecs,
		Meta:     meta,
	}
}
