package providers

import (
	"context"
	"io"
)

// Provider is an OpenAI-style chat completion upstream
type Provider interface {
	// Name returns the provider name
	Name() string

	// StreamComplete performs a streaming completion. The channel is closed
	// after a chunk with FinishReason or Error set.
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ValidateConfig validates the provider configuration
	ValidateConfig() error
}

// Transcriber turns recorded speech into text
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

// CompletionRequest represents a chat completion request
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk represents a chunk in a streaming response
type StreamChunk struct {
	Model        string `json:"model,omitempty"`
	Delta        string `json:"delta,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Error        string `json:"error,omitempty"`
	// StatusCode is the upstream HTTP status when Error came from the API.
	StatusCode int `json:"-"`
}

// TranscriptionRequest carries one audio clip
type TranscriptionRequest struct {
	Audio    io.Reader
	FileName string
	Model    string
	Language string
}
