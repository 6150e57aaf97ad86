package domain

import (
	"context"
	"time"
)

// ConversationStore is a durable ordered log of turns keyed by session.
type ConversationStore interface {
	Append(ctx context.Context, turn Turn) error
	// List returns the session's turns ordered by creation time.
	List(ctx context.Context, sessionID string) ([]Turn, error)
	DeleteAll(ctx context.Context, sessionID string) error
}

type Turn struct {
	SessionID string    `json:"-"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
)

func (r Role) Valid() bool {
	return r == UserRole || r == AssistantRole
}
