package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	// PrimaryProvider names the streaming provider behind the proxy.
	PrimaryProvider = "groq"

	defaultTemperature = 0.7
	maxErrorBodyBytes  = 64 << 10
)

// StreamingTransport posts chat requests to the completion proxy and
// reassembles the event stream it answers with.
type StreamingTransport struct {
	endpoint       string
	apiKey         string
	fallbackModels []string
	client         *http.Client
	logger         logrus.FieldLogger
	metrics        Recorder
	now            func() time.Time
}

// TransportOption configures a StreamingTransport
type TransportOption func(*StreamingTransport)

// WithStreamClient sets the HTTP client used for proxy requests
func WithStreamClient(client *http.Client) TransportOption {
	return func(t *StreamingTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithStreamLogger sets the transport logger
func WithStreamLogger(logger logrus.FieldLogger) TransportOption {
	return func(t *StreamingTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithStreamMetrics sets the recorder for attempt metrics
func WithStreamMetrics(recorder Recorder) TransportOption {
	return func(t *StreamingTransport) {
		if recorder != nil {
			t.metrics = recorder
		}
	}
}

// WithFallbackModels replaces the fallback model list
func WithFallbackModels(models []string) TransportOption {
	return func(t *StreamingTransport) {
		t.fallbackModels = append([]string(nil), models...)
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) TransportOption {
	return func(t *StreamingTransport) {
		if now != nil {
			t.now = now
		}
	}
}

// NewStreamingTransport creates a transport for the proxy at cfg.EndpointBaseURL
func NewStreamingTransport(cfg Config, opts ...TransportOption) (*StreamingTransport, error) {
	if strings.TrimSpace(cfg.EndpointBaseURL) == "" {
		return nil, &ConfigurationError{Field: "EndpointBaseURL", Reason: "is not set"}
	}

	t := &StreamingTransport{
		endpoint:       cfg.completionURL(),
		apiKey:         cfg.PrimaryAPIKey,
		fallbackModels: append([]string(nil), cfg.fallbackModels()...),
		client:         &http.Client{},
		logger:         discardLogger(),
		metrics:        noopRecorder{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Candidates returns the ordered model list tried for the given model
func (t *StreamingTransport) Candidates(model string) []Candidate {
	return candidateList(PrimaryProvider, model, t.fallbackModels)
}

// Stream runs the request against each candidate model in turn until one
// completes. The returned log holds the failed attempts in order.
func (t *StreamingTransport) Stream(ctx context.Context, req StreamRequest) (*StreamResult, AttemptLog, error) {
	if req.OnChunk == nil {
		req.OnChunk = func(string) {}
	}

	return TryInOrder(ctx, t.Candidates(req.Model), func(ctx context.Context, c Candidate) (*StreamResult, error) {
		start := t.now()
		delivered := 0
		result, err := t.streamOnce(ctx, c.Model, req, start, &delivered)
		latency := t.now().Sub(start)
		t.metrics.RecordRequest(c.Provider, c.Model, err == nil, latency)

		if err != nil {
			t.logger.WithFields(logrus.Fields{
				"provider":  c.Provider,
				"model":     c.Model,
				"delivered": delivered,
				"error":     err.Error(),
			}).Warn("model attempt failed")

			if delivered > 0 && req.OnRetry != nil && ctx.Err() == nil {
				req.OnRetry(c.Model, err)
			}
			return nil, err
		}

		t.metrics.RecordTokens(c.Provider, result.TokenCount)
		return result, nil
	})
}

type completionRequest struct {
	Message             string     `json:"message"`
	Model               string     `json:"model"`
	SystemPrompt        string     `json:"systemPrompt,omitempty"`
	ConversationHistory []ChatTurn `json:"conversationHistory"`
	MaxTokens           int        `json:"maxTokens,omitempty"`
	Temperature         float64    `json:"temperature"`
}

func (t *StreamingTransport) streamOnce(ctx context.Context, model string, req StreamRequest, start time.Time, delivered *int) (*StreamResult, error) {
	history := req.ConversationHistory
	if history == nil {
		history = []ChatTurn{}
	}

	body, err := json.Marshal(completionRequest{
		Message:             req.Message,
		Model:               model,
		SystemPrompt:        req.SystemPrompt,
		ConversationHistory: history,
		MaxTokens:           req.MaxTokens,
		Temperature:         defaultTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Provider: PrimaryProvider, Model: model, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(model, resp)
	}

	session := newStreamSession(model, start)
	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			frame := DecodeFrame(line)
			switch frame.Kind {
			case FrameDone:
				return session.finish(t.now()), nil
			case FrameError:
				return nil, &TransportError{Provider: PrimaryProvider, Model: model, Message: frame.Error}
			case FrameData:
				if frame.TotalTokens > 0 {
					session.observeTokens(frame.TotalTokens)
				}
				if frame.Content != "" {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					session.append(frame.Content)
					req.OnChunk(frame.Content)
					*delivered++
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			return session.finish(t.now()), nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TransportError{Provider: PrimaryProvider, Model: model, Err: fmt.Errorf("stream read failed: %w", readErr)}
		}
	}
}

// statusError builds a TransportError from a non-2xx response, preferring
// the proxy's {"error": "..."} body over the bare status.
func statusError(model string, resp *http.Response) *TransportError {
	terr := &TransportError{Provider: PrimaryProvider, Model: model, StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Error) > 0 {
		var message string
		if json.Unmarshal(body.Error, &message) == nil {
			terr.Message = message
		} else {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(body.Error, &nested) == nil {
				terr.Message = nested.Message
			}
		}
	}
	if terr.Message == "" {
		terr.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return terr
}

// streamSession is the mutable state of one attempt's read loop
type streamSession struct {
	model      string
	start      time.Time
	text       strings.Builder
	tokenCount int
}

func newStreamSession(model string, start time.Time) *streamSession {
	return &streamSession{model: model, start: start}
}

func (s *streamSession) append(fragment string) {
	s.text.WriteString(fragment)
}

func (s *streamSession) observeTokens(total int) {
	s.tokenCount = total
}

func (s *streamSession) finish(end time.Time) *StreamResult {
	text := s.text.String()
	tokens := s.tokenCount
	if tokens <= 0 {
		tokens = EstimateTokens(text)
	}
	return &StreamResult{
		Text:       text,
		Model:      s.model,
		TokenCount: tokens,
		LatencyMs:  end.Sub(s.start).Milliseconds(),
	}
}

// EstimateTokens approximates a token count as ceil(characters / 4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
