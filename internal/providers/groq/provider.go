package groq

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/studymate/studymate-backend/internal/providers"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible API root
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is used when a request names no model
	DefaultModel = "llama-3.1-8b-instant"
	// DefaultTranscriptionModel is the whisper model used for audio
	DefaultTranscriptionModel = "whisper-large-v3-turbo"

	defaultAudioFileName = "audio.webm"
	defaultLanguage      = "en"
)

// Config holds the Groq connection settings
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Provider talks to Groq through the go-openai client
type Provider struct {
	config Config
	client *openai.Client
}

// NewProvider creates a Groq provider
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GROQ_API_KEY not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &Provider{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "groq"
}

// ValidateConfig validates the provider configuration
func (p *Provider) ValidateConfig() error {
	if p.config.APIKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

// StreamComplete performs a streaming completion
func (p *Provider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	openAIReq := convertRequest(req)

	stream, err := p.client.CreateChatCompletionStream(ctx, openAIReq)
	if err != nil {
		return nil, err
	}

	chunks := make(chan providers.StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		send := func(chunk providers.StreamChunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(providers.StreamChunk{Model: openAIReq.Model, FinishReason: "stop"})
				return
			}
			if err != nil {
				send(providers.StreamChunk{Model: openAIReq.Model, Error: err.Error(), StatusCode: StatusCode(err)})
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			choice := response.Choices[0]
			if choice.Delta.Content == "" && choice.FinishReason == "" {
				continue
			}
			if !send(providers.StreamChunk{Model: response.Model, Delta: choice.Delta.Content}) {
				return
			}
		}
	}()

	return chunks, nil
}

// Transcribe sends an audio clip to the whisper endpoint
func (p *Provider) Transcribe(ctx context.Context, req providers.TranscriptionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultTranscriptionModel
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = defaultAudioFileName
	}
	language := req.Language
	if language == "" {
		language = defaultLanguage
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: fileName,
		Reader:   req.Audio,
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// StatusCode extracts the upstream HTTP status from a go-openai error, or 0
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func convertRequest(req providers.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	openAIReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if req.Temperature != nil {
		openAIReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		openAIReq.MaxTokens = *req.MaxTokens
	}
	return openAIReq
}
