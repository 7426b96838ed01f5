package harnessports

import (
	"context"
	"time"
)

// Turn represents a conversational exchange for the audit log. The live
// session transcript is held in memory; the store is written on every turn
// and read back only when a session resumes after a restart.
type Turn struct {
	Role      string    // "user" | "assistant" | "tool"
	Content   string    // text or JSON string (for tool outputs)
	CreatedAt time.Time // server-side timestamp
}

// ConversationStore persists conversation turns for audit and for resuming
// a returning session's context.
type ConversationStore interface {
	SaveTurn(ctx context.Context, sessionID string, turn Turn) error
	LoadContext(ctx context.Context, sessionID string, k int) ([]Turn, error) // last-k turns
}
