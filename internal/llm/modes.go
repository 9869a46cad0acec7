package llm

import (
	"sort"
)

// DefaultMode is used for any mode identifier not in the table
const DefaultMode = "base"

// ModeConfig describes one selectable tier
type ModeConfig struct {
	ProviderModelID string `json:"providerModelId"`
	Label           string `json:"label"`
	DisplayName     string `json:"displayName"`
	// DailyLimit is nil for unlimited.
	DailyLimit      *int `json:"dailyLimit"`
	PerMinuteLimit  int  `json:"perMinuteLimit"`
	MaxTokens       int  `json:"maxTokens"`
	TokensPerMinute int  `json:"tokensPerMinute"`
}

var modes = map[string]ModeConfig{
	"air": {
		ProviderModelID: "llama-3.1-8b-instant",
		Label:           "Llama 3.1 8B",
		DisplayName:     "Meta's Llama 3.1",
		PerMinuteLimit:  20,
		MaxTokens:       6144,
		TokensPerMinute: 10000,
	},
	"base": {
		ProviderModelID: "openai/gpt-oss-20b",
		Label:           "OpenAI GPT 20B",
		DisplayName:     "OpenAI's GPT",
		PerMinuteLimit:  15,
		MaxTokens:       12288,
		TokensPerMinute: 10000,
	},
	"pro": {
		ProviderModelID: "openai/gpt-oss-120b",
		Label:           "OpenAI GPT 120B",
		DisplayName:     "OpenAI's GPT Pro",
		DailyLimit:      limit(200),
		PerMinuteLimit:  10,
		MaxTokens:       16384,
		TokensPerMinute: 10000,
	},
	"pro-max": {
		ProviderModelID: "moonshotai/kimi-k2-instruct",
		Label:           "Kimi K2",
		DisplayName:     "Moonshot's Kimi K2",
		DailyLimit:      limit(100),
		PerMinuteLimit:  50,
		MaxTokens:       32768,
		TokensPerMinute: 10000,
	},
	"ultra": {
		ProviderModelID: "groq/compound",
		Label:           "Groq Compound",
		DisplayName:     "Groq's Compound AI",
		DailyLimit:      limit(25),
		PerMinuteLimit:  5,
		MaxTokens:       65536,
		TokensPerMinute: 10000,
	},
}

func limit(n int) *int {
	return &n
}

// ResolveMode returns the identifier actually used and its configuration.
// Unknown identifiers resolve to DefaultMode.
func ResolveMode(id string) (string, ModeConfig) {
	if cfg, ok := modes[id]; ok {
		return id, cfg
	}
	return DefaultMode, modes[DefaultMode]
}

// ModeIDs lists the known mode identifiers in sorted order
func ModeIDs() []string {
	ids := make([]string, 0, len(modes))
	for id := range modes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
