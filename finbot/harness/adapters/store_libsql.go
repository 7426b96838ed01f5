package adapters

import (
	"context"
	"database/sql"
	"fmt"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// LibSQLConversationStore persists conversation turns to the embedded
// database. It is append-only; the only read path is LoadContext, which
// resumes a returning session after a restart.
type LibSQLConversationStore struct {
	db *sql.DB
}

var _ harnessports.ConversationStore = (*LibSQLConversationStore)(nil)

func NewLibSQLConversationStore(ctx context.Context, db *sql.DB) (*LibSQLConversationStore, error) {
	schema := `
		CREATE TABLE IF NOT EXISTS conversation_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversation_turns_session
			ON conversation_turns (session_id, id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure conversation schema: %w", err)
	}
	return &LibSQLConversationStore{db: db}, nil
}

func (s *LibSQLConversationStore) SaveTurn(ctx context.Context, sessionID string, turn harnessports.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, turn.Role, turn.Content, turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// LoadContext returns the last k turns for a session in chronological order.
func (s *LibSQLConversationStore) LoadContext(ctx context.Context, sessionID string, k int) ([]harnessports.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at FROM conversation_turns
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, sessionID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []harnessports.Turn
	for rows.Next() {
		var turn harnessports.Turn
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}
