// Package chat implements the conversational core: session memory, query
// routing, and the two fallback answer paths (guideline retrieval and the
// tool-calling loop).
package chat

import (
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// Pair is one completed (query, reply) exchange, the view the retrieval
// chain consumes.
type Pair struct {
	Query string
	Reply string
}

// Memory is the session's single append-only role transcript. Both history
// views derive from it, so the pair history and the tool-loop transcript can
// never disagree. It lives only as long as the session; nothing is reloaded
// across restarts.
type Memory struct {
	transcript []harnessports.PromptMessage
}

func NewMemory() *Memory {
	return &Memory{}
}

// SeedAssistant records an opening assistant message with no matching user
// query, such as the session greeting.
func (m *Memory) SeedAssistant(content string) {
	m.transcript = append(m.transcript, harnessports.PromptMessage{Role: "assistant", Content: content})
}

// AppendTurn records one completed user turn: the query, any intermediate
// tool-call messages, and the final reply. Every turn appends exactly one
// user message and exactly one final assistant message, failed turns
// included.
func (m *Memory) AppendTurn(query, reply string, intermediate []harnessports.PromptMessage) {
	m.transcript = append(m.transcript, harnessports.PromptMessage{Role: "user", Content: query})
	m.transcript = append(m.transcript, intermediate...)
	m.transcript = append(m.transcript, harnessports.PromptMessage{Role: "assistant", Content: reply})
}

// Transcript returns a copy of the full role transcript in insertion order.
func (m *Memory) Transcript() []harnessports.PromptMessage {
	out := make([]harnessports.PromptMessage, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// Pairs derives the (query, reply) view: each user message paired with the
// next final assistant message. Assistant messages that request tools and
// tool results are internal to a turn and do not appear; seeded greetings
// have no user query and are skipped too.
func (m *Memory) Pairs() []Pair {
	var pairs []Pair
	var pending string
	var havePending bool
	for _, msg := range m.transcript {
		switch msg.Role {
		case "user":
			pending = msg.Content
			havePending = true
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				continue
			}
			if havePending {
				pairs = append(pairs, Pair{Query: pending, Reply: msg.Content})
				havePending = false
			}
		}
	}
	return pairs
}

// Len reports the number of transcript messages.
func (m *Memory) Len() int {
	return len(m.transcript)
}
