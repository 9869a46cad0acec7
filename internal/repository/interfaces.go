package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist or belongs to another user
var ErrNotFound = errors.New("not found")

// Conversation groups the exchanges of one chat
type Conversation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Message is one question/answer exchange
type Message struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversationId"`
	UserID         uuid.UUID `db:"user_id" json:"userId"`
	Question       string    `db:"question" json:"question"`
	Answer         string    `db:"answer" json:"answer"`
	ModelUsed      string    `db:"model_used" json:"modelUsed"`
	Mode           string    `db:"mode" json:"mode,omitempty"`
	TokenCount     int       `db:"token_count" json:"tokenCount"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// MessageEvent is the payload published when a message row is inserted
type MessageEvent struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	ModelUsed      string    `json:"model_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationRepository defines conversation storage operations
type ConversationRepository interface {
	Create(ctx context.Context, conversation Conversation) (*Conversation, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Conversation, error)
	Touch(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// MessageRepository defines message storage operations
type MessageRepository interface {
	Create(ctx context.Context, message Message) (*Message, error)
	Get(ctx context.Context, id uuid.UUID) (*Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
}

// MessageListener delivers insert events until ctx is done
type MessageListener interface {
	Listen(ctx context.Context, handle func(MessageEvent)) error
}
