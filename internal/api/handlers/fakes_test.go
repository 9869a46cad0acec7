package handlers

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/providers"
	"github.com/studymate/studymate-backend/internal/repository"
)

type fakeRouter struct {
	chunks   []string
	retried  string
	result   *llm.Result
	err      error
	lastReq  llm.RouteRequest
	lastSeen llm.VisionRequest
}

func (f *fakeRouter) Route(_ context.Context, req llm.RouteRequest) (*llm.Result, error) {
	f.lastReq = req
	if f.retried != "" && req.OnRetry != nil {
		req.OnRetry(f.retried, io.ErrUnexpectedEOF)
	}
	for _, chunk := range f.chunks {
		if req.OnChunk != nil {
			req.OnChunk(chunk)
		}
	}
	return f.result, f.err
}

func (f *fakeRouter) RouteVision(_ context.Context, req llm.VisionRequest) (*llm.Result, error) {
	f.lastSeen = req
	if req.ImageBase64 == "" {
		return nil, llm.ErrEmptyImage
	}
	return f.result, f.err
}

type fakeProvider struct {
	chunks  []providers.StreamChunk
	err     error
	lastReq providers.CompletionRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ValidateConfig() error { return nil }

func (f *fakeProvider) StreamComplete(_ context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan providers.StreamChunk, len(f.chunks))
	for _, chunk := range f.chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

type fakeTranscriber struct {
	text  string
	err   error
	audio []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req providers.TranscriptionRequest) (string, error) {
	data, err := io.ReadAll(req.Audio)
	if err != nil {
		return "", err
	}
	f.audio = data
	return f.text, f.err
}

// memoryHistory implements both repositories over maps
type memoryHistory struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]repository.Conversation
	messages      map[uuid.UUID]repository.Message
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{
		conversations: make(map[uuid.UUID]repository.Conversation),
		messages:      make(map[uuid.UUID]repository.Message),
	}
}

type memoryConversations struct{ *memoryHistory }

type memoryMessages struct{ *memoryHistory }

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
	var out []repository.Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memoryConversations) Touch(context.Context, uuid.UUID) error { return nil }

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
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.messages[msg.ID] = msg
	return &msg, nil
}

func (m memoryMessages) Get(_ context.Context, id uuid.UUID) (*repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &msg, nil
}

func (m memoryMessages) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}
