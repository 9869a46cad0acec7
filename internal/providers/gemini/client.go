package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Generative Language API endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel serves both text and vision requests
	DefaultModel = "gemini-2.0-flash-lite"

	textTemperature   = 0.7
	textMaxTokens     = 2048
	visionTemperature = 0.4
	visionMaxTokens   = 4096

	apiKeyHeader = "x-goog-api-key"

	noTextResponse   = "No response"
	noVisionResponse = "Could not analyze image"
)

// ErrMissingAPIKey is returned before any request when no key is configured
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY not configured")

// APIError is a non-2xx response or an error object in a 2xx body
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Gemini API failed (%d): %s", e.StatusCode, e.Message)
	}
	return "Gemini error: " + e.Message
}

// Client calls the generateContent endpoint
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	visionModel string
	httpClient  *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API base URL
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithModel sets the text model
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithVisionModel sets the image model
func WithVisionModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.visionModel = model
		}
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient creates a new Gemini client
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		visionModel: DefaultModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name
func (c *Client) Name() string {
	return "Gemini"
}

// Model returns the text model identifier
func (c *Client) Model() string {
	return c.model
}

// Complete sends a single prompt built from the system prompt and message.
// Conversation history is not part of the request.
func (c *Client) Complete(ctx context.Context, systemPrompt, message string) (string, error) {
	prompt := message
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\nUser: " + message
	}

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     textTemperature,
			MaxOutputTokens: textMaxTokens,
		},
	}
	return c.generate(ctx, c.model, req, noTextResponse)
}

// Describe sends an inline base64 image with an instruction prompt
func (c *Client) Describe(ctx context.Context, prompt, mimeType, data string) (string, error) {
	req := generateRequest{
		Contents: []content{{Parts: []part{
			{Text: prompt},
			{InlineData: &inlineData{MIMEType: mimeType, Data: data}},
		}}},
		GenerationConfig: generationConfig{
			Temperature:     visionTemperature,
			MaxOutputTokens: visionMaxTokens,
		},
	}
	return c.generate(ctx, c.visionModel, req, noVisionResponse)
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (c *Client) generate(ctx context.Context, model string, req generateRequest, empty string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// the key goes in a header: request errors quote the URL
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.Error != nil {
		message := parsed.Error.Message
		if message == "" {
			message = "Unknown error"
		}
		return "", &APIError{Message: message}
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return empty, nil
	}
	text := parsed.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return empty, nil
	}
	return text, nil
}
