package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/repository"
)

const subscriberBuffer = 16

// Subscription receives messages inserted into one conversation
type Subscription struct {
	C              <-chan repository.Message
	ch             chan repository.Message
	conversationID uuid.UUID
	hub            *Hub
	once           sync.Once
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// MessageLoader fetches the full row for an insert event
type MessageLoader interface {
	MessageByID(ctx context.Context, id uuid.UUID) (*repository.Message, error)
}

// Hub fans message insert events out to live subscribers
type Hub struct {
	listener repository.MessageListener
	loader   MessageLoader
	logger   logrus.FieldLogger

	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

// NewHub creates a hub. Run must be called to start receiving events.
func NewHub(listener repository.MessageListener, loader MessageLoader, logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		listener: listener,
		loader:   loader,
		logger:   logger.WithField("component", "realtime"),
		subs:     make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Run consumes events until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	return h.listener.Listen(ctx, func(event repository.MessageEvent) {
		if !h.hasSubscribers(event.ConversationID) {
			return
		}
		message, err := h.loader.MessageByID(ctx, event.ID)
		if err != nil {
			h.logger.WithError(err).WithField("message_id", event.ID).Warn("failed to load inserted message")
			return
		}
		h.Dispatch(*message)
	})
}

// Subscribe registers interest in one conversation
func (h *Hub) Subscribe(conversationID uuid.UUID) *Subscription {
	ch := make(chan repository.Message, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, conversationID: conversationID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[*Subscription]struct{})
	}
	h.subs[conversationID][sub] = struct{}{}
	return sub
}

// Dispatch delivers a message to the conversation's subscribers. A
// subscriber whose buffer is full misses the message.
func (h *Hub) Dispatch(message repository.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[message.ConversationID] {
		select {
		case sub.ch <- message:
		default:
			h.logger.WithField("conversation_id", message.ConversationID).Warn("live subscriber is lagging, dropping message")
		}
	}
}

func (h *Hub) hasSubscribers(conversationID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID]) > 0
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[sub.conversationID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.conversationID)
	}
	close(sub.ch)
}
