package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/repository"
)

type fakeRouter struct {
	result    *llm.Result
	err       error
	lastRoute llm.RouteRequest
	calls     int
}

func (f *fakeRouter) Route(_ context.Context, req llm.RouteRequest) (*llm.Result, error) {
	f.calls++
	f.lastRoute = req
	if req.OnChunk != nil && f.result != nil {
		req.OnChunk(f.result.Text)
	}
	return f.result, f.err
}

func (f *fakeRouter) RouteVision(_ context.Context, _ llm.VisionRequest) (*llm.Result, error) {
	f.calls++
	return f.result, f.err
}

type memoryStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]repository.Conversation
	messages      []repository.Message
	failMessages  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{conversations: make(map[uuid.UUID]repository.Conversation)}
}

type memoryConversations struct{ *memoryStore }

type memoryMessages struct{ *memoryStore }

func (m memoryConversations) Create(_ context.Context, c repository.Conversation) (*repository.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.conversations[c.ID] = c
	return &c, nil
}

func (m memoryConversations) Get(_ context.Context, userID, id uuid.UUID) (*repository.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m memoryConversations) ListByUser(_ context.Context, userID uuid.UUID) ([]repository.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []repository.Conversation{}
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memoryConversations) Touch(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conversations[id]
	c.UpdatedAt = time.Now()
	m.conversations[id] = c
	return nil
}

func (m memoryConversations) Delete(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.conversations, id)
	return nil
}

func (m memoryMessages) Create(_ context.Context, msg repository.Message) (*repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMessages {
		return nil, context.DeadlineExceeded
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m memoryMessages) Get(_ context.Context, id uuid.UUID) (*repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return &msg, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memoryMessages) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []repository.Message{}
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type chanListener struct {
	events chan repository.MessageEvent
}

func (l *chanListener) Listen(ctx context.Context, handle func(repository.MessageEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-l.events:
			handle(event)
		}
	}
}
