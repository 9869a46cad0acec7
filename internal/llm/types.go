package llm

import (
	"time"
)

// Role identifies the author of a chat turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatTurn is one message of a conversation
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChunkFunc receives one streamed text fragment. It runs on the read loop
// and must return promptly.
type ChunkFunc func(fragment string)

// RetryFunc is invoked when a model attempt fails after it already delivered
// fragments; text received so far for that attempt should be discarded.
type RetryFunc func(failedModel string, err error)

// StreamRequest is the input of StreamingTransport.Stream
type StreamRequest struct {
	Message             string
	SystemPrompt        string
	Model               string
	ConversationHistory []ChatTurn
	MaxTokens           int
	OnChunk             ChunkFunc
	OnRetry             RetryFunc
}

// StreamResult is the finalized outcome of one successful stream
type StreamResult struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	TokenCount int    `json:"tokenCount"`
	LatencyMs  int64  `json:"latencyMs"`
}

// Attempt records one failed provider/model attempt
type Attempt struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Err      error  `json:"-"`
}

// AttemptLog is the ordered list of failed attempts of a single request
type AttemptLog []Attempt

// Last returns the most recent attempt, if any
func (l AttemptLog) Last() (Attempt, bool) {
	if len(l) == 0 {
		return Attempt{}, false
	}
	return l[len(l)-1], true
}

// Models returns the model identifiers in attempt order
func (l AttemptLog) Models() []string {
	models := make([]string, len(l))
	for i, a := range l {
		models[i] = a.Model
	}
	return models
}

// RouteRequest is the input of ProviderRouter.Route
type RouteRequest struct {
	Message             string
	OnChunk             ChunkFunc
	OnRetry             RetryFunc
	Mode                string
	ConversationHistory []ChatTurn
	Personality         string
	// ClientKey scopes the advisory token budget (user id or remote address).
	ClientKey string
}

// Result is what the router hands back to its caller
type Result struct {
	Text string `json:"text"`
	// Model is the user-facing model name, not the upstream identifier.
	Model      string     `json:"model"`
	ModelID    string     `json:"modelId,omitempty"`
	Provider   string     `json:"provider,omitempty"`
	Mode       string     `json:"mode,omitempty"`
	TokenCount int        `json:"tokenCount"`
	LatencyMs  int64      `json:"latencyMs"`
	Attempts   AttemptLog `json:"-"`
	// Notice is set, with every other field empty, when the request was
	// held back by the client-side budget and no provider was contacted.
	Notice *Notice `json:"notice,omitempty"`
}

// VisionRequest carries an inline image for RouteVision
type VisionRequest struct {
	ImageBase64 string `json:"image"`
	MIMEType    string `json:"mimeType"`
}

// Notice explains why a request was not attempted
type Notice struct {
	Reason     string        `json:"reason"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
}
