package models

import (
	"strings"

	"github.com/google/uuid"

	"github.com/studymate/studymate-backend/internal/llm"
)

// UserContext represents the authenticated caller
type UserContext struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// HistoryEntry is one prior turn. Both {role, content} and the older
// {text, isUser} shape are accepted.
type HistoryEntry struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`
	IsUser  *bool  `json:"isUser,omitempty"`
}

// Turn converts the entry; ok is false for empty or unusable entries
func (e HistoryEntry) Turn() (llm.ChatTurn, bool) {
	content := e.Content
	if content == "" {
		content = e.Text
	}
	if strings.TrimSpace(content) == "" {
		return llm.ChatTurn{}, false
	}

	role := llm.Role(strings.ToLower(e.Role))
	switch {
	case role == llm.RoleUser || role == llm.RoleAssistant:
	case role == "" && e.IsUser != nil && *e.IsUser:
		role = llm.RoleUser
	case role == "" && e.IsUser != nil:
		role = llm.RoleAssistant
	default:
		// system turns from clients are not trusted
		return llm.ChatTurn{}, false
	}
	return llm.ChatTurn{Role: role, Content: content}, true
}

// Turns converts a history list, dropping unusable entries
func Turns(entries []HistoryEntry) []llm.ChatTurn {
	turns := make([]llm.ChatTurn, 0, len(entries))
	for _, e := range entries {
		if turn, ok := e.Turn(); ok {
			turns = append(turns, turn)
		}
	}
	return turns
}

// CompletionRequest is the body of POST /api/chat-completion
type CompletionRequest struct {
	Message             string         `json:"message"`
	Model               string         `json:"model"`
	SystemPrompt        string         `json:"systemPrompt"`
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
	MaxTokens           int            `json:"maxTokens"`
	Temperature         *float32       `json:"temperature"`
}

// TranscriptionRequest is the body of POST /api/whisper
type TranscriptionRequest struct {
	Audio string `json:"audio"`
}

// ChatRequest is the body of POST /api/v1/chat and each chat WebSocket message
type ChatRequest struct {
	Message             string         `json:"message"`
	Mode                string         `json:"mode"`
	Personality         string         `json:"personality"`
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
	ConversationID      string         `json:"conversationId"`
	Temporary           bool           `json:"temporary"`
}

// VisionRequest is the body of POST /api/v1/vision
type VisionRequest struct {
	Image          string `json:"image"`
	MIMEType       string `json:"mimeType"`
	ConversationID string `json:"conversationId"`
}

// Stream event types sent over the chat WebSocket
const (
	EventChunk  = "chunk"
	EventReset  = "reset"
	EventDone   = "done"
	EventNotice = "notice"
	EventError  = "error"
)

// StreamEvent is one server message on the chat WebSocket
type StreamEvent struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	Text           string `json:"text,omitempty"`
	Model          string `json:"model,omitempty"`
	Mode           string `json:"mode,omitempty"`
	TokenCount     int    `json:"tokenCount,omitempty"`
	LatencyMs      int64  `json:"latencyMs,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Notice         string `json:"notice,omitempty"`
	RetryAfterMs   int64  `json:"retryAfterMs,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ParseConversationID accepts an empty string as "new conversation"
func ParseConversationID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
