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

// ConversationRepository implements repository.ConversationRepository using PostgreSQL
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new PostgreSQL conversation repository
func NewConversationRepository(db *sqlx.DB) repository.ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a conversation, assigning an id when none is set
func (r *ConversationRepository) Create(ctx context.Context, conversation repository.Conversation) (*repository.Conversation, error) {
	if conversation.ID == uuid.Nil {
		conversation.ID = uuid.New()
	}
	now := time.Now().UTC()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	query := `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (:id, :user_id, :title, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Get retrieves one of the user's conversations
func (r *ConversationRepository) Get(ctx context.Context, userID, id uuid.UUID) (*repository.Conversation, error) {
	var conversation repository.Conversation
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`
	err := r.db.GetContext(ctx, &conversation, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListByUser returns the user's conversations, most recently active first
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]repository.Conversation, error) {
	conversations := []repository.Conversation{}
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	if err := r.db.SelectContext(ctx, &conversations, query, userID); err != nil {
		return nil, err
	}
	return conversations, nil
}

// Touch bumps updated_at
func (r *ConversationRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "UPDATE conversations SET updated_at = NOW() WHERE id = $1", id)
	return err
}

// Delete removes a conversation and, by cascade, its messages
func (r *ConversationRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
