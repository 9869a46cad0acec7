package services

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/repository"
	"github.com/studymate/studymate-backend/internal/repository/postgres"
)

// Services holds all service instances
type Services struct {
	Chat    *ChatService
	Router  *llm.ProviderRouter
	Metrics *llm.MetricsCollector
	// Hub is nil when no database is configured
	Hub *Hub
}

// NewServices wires the chat service. db and listener may be nil, in which
// case chats are answered but never stored.
func NewServices(router *llm.ProviderRouter, metrics *llm.MetricsCollector, db *sqlx.DB, listener repository.MessageListener, logger logrus.FieldLogger) *Services {
	var (
		conversations repository.ConversationRepository
		messages      repository.MessageRepository
	)
	if db != nil {
		conversations = postgres.NewConversationRepository(db)
		messages = postgres.NewMessageRepository(db)
	}

	chat := NewChatService(router, conversations, messages, logger)
	svc := &Services{
		Chat:    chat,
		Router:  router,
		Metrics: metrics,
	}
	if listener != nil && chat.HistoryEnabled() {
		svc.Hub = NewHub(listener, chat, logger)
	}
	return svc
}
