package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// StoredPassage is a chunk with its embedding, as persisted.
type StoredPassage struct {
	Seq       int
	Text      string
	Offset    int
	Embedding []float32
}

// PassageStore persists embedded guideline passages in the embedded database,
// keyed by store ID so several documents can coexist.
type PassageStore struct {
	db *sql.DB
}

func NewPassageStore(ctx context.Context, db *sql.DB) (*PassageStore, error) {
	schema := `
		CREATE TABLE IF NOT EXISTS guideline_passages (
			store_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			source_offset INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (store_id, seq)
		);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure passage schema: %w", err)
	}
	return &PassageStore{db: db}, nil
}

// Count reports how many passages a store holds. A positive count means the
// index was already built on a previous run.
func (s *PassageStore) Count(ctx context.Context, storeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM guideline_passages WHERE store_id = ?`, storeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// SaveAll replaces the store's passages in one transaction.
func (s *PassageStore) SaveAll(ctx context.Context, storeID string, passages []StoredPassage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM guideline_passages WHERE store_id = ?`, storeID); err != nil {
		return fmt.Errorf("failed to clear passages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO guideline_passages (store_id, seq, content, source_offset, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		blob, err := json.Marshal(p.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, storeID, p.Seq, p.Text, p.Offset, blob); err != nil {
			return fmt.Errorf("failed to insert passage %d: %w", p.Seq, err)
		}
	}
	return tx.Commit()
}

// LoadAll returns the store's passages in sequence order. Passages with
// undecodable embeddings are skipped.
func (s *PassageStore) LoadAll(ctx context.Context, storeID string) ([]StoredPassage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, content, source_offset, embedding
		FROM guideline_passages
		WHERE store_id = ?
		ORDER BY seq ASC
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load passages: %w", err)
	}
	defer rows.Close()

	var passages []StoredPassage
	for rows.Next() {
		var p StoredPassage
		var blob []byte
		if err := rows.Scan(&p.Seq, &p.Text, &p.Offset, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		if err := json.Unmarshal(blob, &p.Embedding); err != nil {
			continue
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating passages: %w", err)
	}
	return passages, nil
}
