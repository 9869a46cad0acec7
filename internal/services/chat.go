package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/repository"
)

const (
	titleMaxRunes  = 60
	visionQuestion = "Image upload"
	persistTimeout = 5 * time.Second
)

// ErrHistoryUnavailable is returned when history is requested without a database
var ErrHistoryUnavailable = errors.New("conversation history is not enabled")

// Router is the part of llm.ProviderRouter the chat service needs
type Router interface {
	Route(ctx context.Context, req llm.RouteRequest) (*llm.Result, error)
	RouteVision(ctx context.Context, req llm.VisionRequest) (*llm.Result, error)
}

// ChatRequest is one user message
type ChatRequest struct {
	// UserID is uuid.Nil for guests; guests are never persisted.
	UserID         uuid.UUID
	ConversationID uuid.UUID
	Message        string
	Mode           string
	Personality    string
	History        []llm.ChatTurn
	ClientKey      string
	// Temporary chats are answered but not saved
	Temporary bool
	OnChunk   llm.ChunkFunc
	OnRetry   llm.RetryFunc
}

// ChatResponse is the routed answer plus the conversation it was saved to
type ChatResponse struct {
	*llm.Result
	ConversationID uuid.UUID `json:"conversationId,omitempty"`
}

// ChatService routes messages and records finished exchanges
type ChatService struct {
	router        Router
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	logger        logrus.FieldLogger
}

// NewChatService creates a chat service. Repositories may be nil, which
// disables persistence.
func NewChatService(router Router, conversations repository.ConversationRepository, messages repository.MessageRepository, logger logrus.FieldLogger) *ChatService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChatService{
		router:        router,
		conversations: conversations,
		messages:      messages,
		logger:        logger.WithField("component", "chat"),
	}
}

// HistoryEnabled reports whether conversations are stored
func (s *ChatService) HistoryEnabled() bool {
	return s.conversations != nil && s.messages != nil
}

// Send routes one message and, for signed-in users, saves the exchange
func (s *ChatService) Send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}

	conversationID, err := s.checkConversation(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	clientKey := req.ClientKey
	if req.UserID != uuid.Nil {
		clientKey = req.UserID.String()
	}

	result, err := s.router.Route(ctx, llm.RouteRequest{
		Message:             req.Message,
		OnChunk:             req.OnChunk,
		OnRetry:             req.OnRetry,
		Mode:                req.Mode,
		ConversationHistory: req.History,
		Personality:         req.Personality,
		ClientKey:           clientKey,
	})
	if err != nil {
		return nil, err
	}

	resp := &ChatResponse{Result: result, ConversationID: conversationID}
	if result.Notice != nil || req.Temporary {
		return resp, nil
	}
	resp.ConversationID = s.persist(req.UserID, conversationID, req.Message, result)
	return resp, nil
}

// Vision analyzes an image and, for signed-in users, saves the exchange
func (s *ChatService) Vision(ctx context.Context, userID, conversationID uuid.UUID, req llm.VisionRequest) (*ChatResponse, error) {
	conversationID, err := s.checkConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	result, err := s.router.RouteVision(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &ChatResponse{Result: result}
	resp.ConversationID = s.persist(userID, conversationID, visionQuestion, result)
	return resp, nil
}

// ListConversations returns the user's conversations
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]repository.Conversation, error) {
	if !s.HistoryEnabled() {
		return nil, ErrHistoryUnavailable
	}
	return s.conversations.ListByUser(ctx, userID)
}

// Messages returns the exchanges of one of the user's conversations
func (s *ChatService) Messages(ctx context.Context, userID, conversationID uuid.UUID) ([]repository.Message, error) {
	if !s.HistoryEnabled() {
		return nil, ErrHistoryUnavailable
	}
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, conversationID)
}

// DeleteConversation removes one of the user's conversations
func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	if !s.HistoryEnabled() {
		return ErrHistoryUnavailable
	}
	return s.conversations.Delete(ctx, userID, conversationID)
}

// OwnsConversation reports whether the conversation belongs to the user
func (s *ChatService) OwnsConversation(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	if !s.HistoryEnabled() {
		return false, ErrHistoryUnavailable
	}
	_, err := s.conversations.Get(ctx, userID, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// MessageByID loads a message, for the live feed
func (s *ChatService) MessageByID(ctx context.Context, id uuid.UUID) (*repository.Message, error) {
	if !s.HistoryEnabled() {
		return nil, ErrHistoryUnavailable
	}
	return s.messages.Get(ctx, id)
}

// checkConversation verifies ownership before any provider is contacted
func (s *ChatService) checkConversation(ctx context.Context, userID, conversationID uuid.UUID) (uuid.UUID, error) {
	if conversationID == uuid.Nil || userID == uuid.Nil || !s.HistoryEnabled() {
		return conversationID, nil
	}
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return uuid.Nil, err
	}
	return conversationID, nil
}

// persist stores the exchange. Failures are logged, not returned: the
// answer has already been delivered by the time this runs.
func (s *ChatService) persist(userID, conversationID uuid.UUID, question string, result *llm.Result) uuid.UUID {
	if userID == uuid.Nil || !s.HistoryEnabled() {
		return conversationID
	}

	// the request context may already be gone once the stream finished
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	log := s.logger.WithField("user_id", userID)
	if conversationID == uuid.Nil {
		conversation, err := s.conversations.Create(ctx, repository.Conversation{
			UserID: userID,
			Title:  ConversationTitle(question),
		})
		if err != nil {
			log.WithError(err).Error("failed to create conversation")
			return uuid.Nil
		}
		conversationID = conversation.ID
	}

	_, err := s.messages.Create(ctx, repository.Message{
		ConversationID: conversationID,
		UserID:         userID,
		Question:       question,
		Answer:         result.Text,
		ModelUsed:      result.Model,
		Mode:           result.Mode,
		TokenCount:     result.TokenCount,
	})
	if err != nil {
		log.WithError(err).WithField("conversation_id", conversationID).Error("failed to save message")
		return conversationID
	}
	if err := s.conversations.Touch(ctx, conversationID); err != nil {
		log.WithError(err).Warn("failed to update conversation timestamp")
	}
	return conversationID
}

// ConversationTitle is the first message, cut to at most 60 characters
// including the ellipsis
func ConversationTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	runes := []rune(title)
	return fmt.Sprintf("%s...", string(runes[:titleMaxRunes-3]))
}
