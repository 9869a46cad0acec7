package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/repository"
)

func newTestChat(router Router) (*ChatService, *memoryStore) {
	store := newMemoryStore()
	return NewChatService(router, memoryConversations{store}, memoryMessages{store}, nil), store
}

func TestConversationTitle(t *testing.T) {
	assert.Equal(t, "What is photosynthesis?", ConversationTitle("  What is   photosynthesis? "))
	assert.Equal(t, strings.Repeat("a", 60), ConversationTitle(strings.Repeat("a", 60)))

	long := strings.Repeat("é", 80)
	title := ConversationTitle(long)
	assert.Equal(t, strings.Repeat("é", 57)+"...", title)
}

func TestChatService_SendPersistsForUsers(t *testing.T) {
	router := &fakeRouter{result: &llm.Result{Text: "42", Model: "OpenAI's GPT", Mode: "base", TokenCount: 1}}
	chat, store := newTestChat(router)
	userID := uuid.New()

	var chunks []string
	resp, err := chat.Send(context.Background(), ChatRequest{
		UserID:  userID,
		Message: "What is the answer?",
		OnChunk: func(s string) { chunks = append(chunks, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, "42", resp.Text)
	assert.NotEqual(t, uuid.Nil, resp.ConversationID)
	assert.Equal(t, []string{"42"}, chunks)
	assert.Equal(t, userID.String(), router.lastRoute.ClientKey)

	require.Len(t, store.messages, 1)
	saved := store.messages[0]
	assert.Equal(t, "What is the answer?", saved.Question)
	assert.Equal(t, "42", saved.Answer)
	assert.Equal(t, "OpenAI's GPT", saved.ModelUsed)
	assert.Equal(t, "What is the answer?", store.conversations[resp.ConversationID].Title)

	// follow-up lands in the same conversation
	resp2, err := chat.Send(context.Background(), ChatRequest{UserID: userID, ConversationID: resp.ConversationID, Message: "and?"})
	require.NoError(t, err)
	assert.Equal(t, resp.ConversationID, resp2.ConversationID)
	assert.Len(t, store.conversations, 1)
	assert.Len(t, store.messages, 2)
}

func TestChatService_SendSkipsPersistence(t *testing.T) {
	tests := []struct {
		name   string
		req    ChatRequest
		result *llm.Result
	}{
		{"guest", ChatRequest{Message: "hi", ClientKey: "10.0.0.1"}, &llm.Result{Text: "hello"}},
		{"temporary", ChatRequest{UserID: uuid.New(), Message: "hi", Temporary: true}, &llm.Result{Text: "hello"}},
		{"notice", ChatRequest{UserID: uuid.New(), Message: "hi"}, &llm.Result{Notice: &llm.Notice{Reason: llm.ReasonDailyLimit}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat, store := newTestChat(&fakeRouter{result: tt.result})
			resp, err := chat.Send(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, uuid.Nil, resp.ConversationID)
			assert.Empty(t, store.messages)
			assert.Empty(t, store.conversations)
		})
	}
}

func TestChatService_SendErrors(t *testing.T) {
	router := &fakeRouter{err: &llm.ProviderUnavailableError{}}
	chat, store := newTestChat(router)

	_, err := chat.Send(context.Background(), ChatRequest{UserID: uuid.New(), Message: "hi"})
	var unavailable *llm.ProviderUnavailableError
	assert.ErrorAs(t, err, &unavailable)
	assert.Empty(t, store.messages)

	_, err = chat.Send(context.Background(), ChatRequest{Message: "   "})
	assert.Error(t, err)

	// someone else's conversation is rejected before routing
	router.calls = 0
	_, err = chat.Send(context.Background(), ChatRequest{UserID: uuid.New(), ConversationID: uuid.New(), Message: "hi"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Zero(t, router.calls)
}

func TestChatService_SaveFailureStillAnswers(t *testing.T) {
	chat, store := newTestChat(&fakeRouter{result: &llm.Result{Text: "ok"}})
	store.failMessages = true

	resp, err := chat.Send(context.Background(), ChatRequest{UserID: uuid.New(), Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestChatService_Vision(t *testing.T) {
	chat, store := newTestChat(&fakeRouter{result: &llm.Result{Text: "Solution", Model: llm.VisionDisplayName}})
	userID := uuid.New()

	resp, err := chat.Vision(context.Background(), userID, uuid.Nil, llm.VisionRequest{ImageBase64: "aGk="})
	require.NoError(t, err)
	assert.Equal(t, "Solution", resp.Text)

	require.Len(t, store.messages, 1)
	assert.Equal(t, "Image upload", store.messages[0].Question)
	assert.Equal(t, "Google Gemini Vision", store.messages[0].ModelUsed)
}

func TestChatService_History(t *testing.T) {
	chat, _ := newTestChat(&fakeRouter{result: &llm.Result{Text: "a"}})
	owner, other := uuid.New(), uuid.New()

	resp, err := chat.Send(context.Background(), ChatRequest{UserID: owner, Message: "q"})
	require.NoError(t, err)

	list, err := chat.ListConversations(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	messages, err := chat.Messages(context.Background(), owner, resp.ConversationID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	_, err = chat.Messages(context.Background(), other, resp.ConversationID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	owns, err := chat.OwnsConversation(context.Background(), other, resp.ConversationID)
	require.NoError(t, err)
	assert.False(t, owns)

	assert.ErrorIs(t, chat.DeleteConversation(context.Background(), other, resp.ConversationID), repository.ErrNotFound)
	require.NoError(t, chat.DeleteConversation(context.Background(), owner, resp.ConversationID))
}

func TestChatService_WithoutDatabase(t *testing.T) {
	chat := NewChatService(&fakeRouter{result: &llm.Result{Text: "ok"}}, nil, nil, nil)

	resp, err := chat.Send(context.Background(), ChatRequest{UserID: uuid.New(), Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	_, err = chat.ListConversations(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrHistoryUnavailable))
}
