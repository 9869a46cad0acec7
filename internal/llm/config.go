package llm

import (
	"strings"
)

// CompletionPath is the proxy route the streaming transport posts to.
const CompletionPath = "/api/chat-completion"

// DefaultFallbackModels are tried, in order, after the mode's own model fails.
var DefaultFallbackModels = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-70b-versatile",
	"llama-3.1-8b-instant",
}

// Config carries credentials and endpoints for the router and its transport.
// Nothing in this package reads the process environment; callers build a
// Config explicitly (see config.Config.RouterConfig).
type Config struct {
	// PrimaryAPIKey is sent as a bearer token to the completion proxy when set.
	PrimaryAPIKey string
	// SecondaryAPIKey authenticates against the secondary (Gemini) provider.
	SecondaryAPIKey string
	// EndpointBaseURL is the base URL of the completion proxy.
	EndpointBaseURL string
	// DefaultModel is used when a mode carries no model identifier.
	DefaultModel string
	// FallbackModels overrides DefaultFallbackModels. A nil slice keeps the
	// defaults, an empty non-nil slice disables model fallback.
	FallbackModels []string

	SecondaryBaseURL string
	SecondaryModel   string
	VisionModel      string
}

func (c Config) completionURL() string {
	return strings.TrimSuffix(c.EndpointBaseURL, "/") + CompletionPath
}

func (c Config) fallbackModels() []string {
	if c.FallbackModels == nil {
		return DefaultFallbackModels
	}
	return c.FallbackModels
}
