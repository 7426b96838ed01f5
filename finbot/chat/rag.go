package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/finbot-ai/finbot/finbot/harness"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
	"github.com/finbot-ai/finbot/finbot/retrieval"
)

const ragSystemPrompt = `You are FinBot, a financial assistant. Answer the user's question using the
guideline excerpts provided as context. If the excerpts do not cover the
question, say so and answer from general financial knowledge. Keep answers
concise and suitable for a chat interface.`

// Searcher retrieves guideline passages ranked by relevance to a query.
// Satisfied by retrieval.Engine.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Passage, error)
}

// RAGChain answers fallback queries from the guideline index: top-k passages
// plus the pair history are fed to the model without tool declarations.
type RAGChain struct {
	engine   Searcher
	provider harnessports.Provider
	k        int
	opts     harnessports.Options
	logger   zerolog.Logger
}

var _ Handler = (*RAGChain)(nil)

func NewRAGChain(engine Searcher, provider harnessports.Provider, k int, opts harnessports.Options, logger zerolog.Logger) *RAGChain {
	if k < 1 {
		k = 2
	}
	return &RAGChain{
		engine:   engine,
		provider: provider,
		k:        k,
		opts:     opts,
		logger:   logger.With().Str("component", "rag").Logger(),
	}
}

// Handle retrieves passages and generates a grounded reply. Retrieval
// failures degrade to an uncontexted answer; model failures become the fixed
// fallback string. Never returns intermediate messages.
func (c *RAGChain) Handle(ctx context.Context, sessionID, query string, mem *Memory) (string, []harnessports.PromptMessage) {
	var snippets []string
	passages, err := c.engine.Search(ctx, query, c.k)
	if err != nil {
		c.logger.Warn().Err(err).Msg("passage retrieval failed, answering without context")
	} else {
		for _, p := range passages {
			snippets = append(snippets, p.Text)
		}
	}

	var messages []harnessports.PromptMessage
	for _, pair := range mem.Pairs() {
		messages = append(messages,
			harnessports.PromptMessage{Role: "user", Content: pair.Query},
			harnessports.PromptMessage{Role: "assistant", Content: pair.Reply},
		)
	}
	messages = append(messages, harnessports.PromptMessage{Role: "user", Content: query})

	opts := c.opts
	opts.ToolChoice = "none"
	completion, err := c.provider.Complete(ctx, harnessports.PromptInput{
		System:   ragSystemPrompt,
		Messages: messages,
		Context:  snippets,
	}, opts)
	if err != nil {
		c.logger.Error().Err(err).Msg("rag completion failed")
		return harness.FallbackReply, nil
	}

	reply := strings.TrimSpace(completion.Text)
	if reply == "" {
		return harness.FallbackReply, nil
	}
	return reply, nil
}
