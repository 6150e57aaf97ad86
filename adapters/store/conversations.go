package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roberta039/Gym-Trainer/domain"
)

// ConversationStore implements domain.ConversationStore on the history table.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) Append(ctx context.Context, turn domain.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("append turn: invalid role %q", turn.Role)
	}
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO history (session_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		turn.SessionID, string(turn.Role), turn.Content, createdAt.UnixNano())
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// List returns turns ascending by creation time; rows with the same
// timestamp keep insertion order.
func (s *ConversationStore) List(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, created_at FROM history WHERE session_id = ? ORDER BY created_at ASC, id ASC",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			role      string
			content   string
			createdAt int64
		)
		if err := rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("list turns: scan: %w", err)
		}
		turns = append(turns, domain.Turn{
			SessionID: sessionID,
			Role:      domain.Role(role),
			Content:   content,
			CreatedAt: time.Unix(0, createdAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return turns, nil
}

func (s *ConversationStore) DeleteAll(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	return nil
}
