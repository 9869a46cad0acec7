package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studymate/studymate-backend/internal/repository"
)

// MessageRepository implements repository.MessageRepository using PostgreSQL
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, message repository.Message) (*repository.Message, error) {
	message.ID = uuid.New()
	message.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO messages (id, conversation_id, user_id, question, answer, model_used, mode, token_count, created_at)
		VALUES (:id, :conversation_id, :user_id, :question, :answer, :model_used, :mode, :token_count, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return nil, err
	}
	return &message, nil
}

// Get retrieves a message by id
func (r *MessageRepository) Get(ctx context.Context, id uuid.UUID) (*repository.Message, error) {
	var message repository.Message
	query := `
		SELECT id, conversation_id, user_id, question, answer, model_used, mode, token_count, created_at
		FROM messages
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &message, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByConversation retrieves messages for a conversation in order
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]repository.Message, error) {
	messages := []repository.Message{}
	query := `
		SELECT id, conversation_id, user_id, question, answer, model_used, mode, token_count, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	if err := r.db.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, err
	}
	return messages, nil
}
