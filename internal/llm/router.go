package llm

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/providers/gemini"
)

const (
	// VisionDisplayName labels results of RouteVision
	VisionDisplayName = "Google Gemini Vision"

	defaultVisionMIMEType = "image/jpeg"
)

// VisionPrompt is sent with every image
const VisionPrompt = `You are an AI homework assistant. Analyze this image and:
1. Identify the homework problem or question shown
2. Provide a clear, step-by-step solution
3. Explain the concepts involved
4. If it's a math problem, show all work
5. If it's a reading/writing task, provide guidance

Format your response in a clear, educational way with proper sections and explanations.`

var dataURLPrefix = regexp.MustCompile(`^data:image/[\w.+-]+;base64,`)

// SecondaryProvider is a non-streaming text provider used after the
// primary provider is exhausted.
type SecondaryProvider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, systemPrompt, message string) (string, error)
}

// VisionProvider answers a prompt about an inline image
type VisionProvider interface {
	Describe(ctx context.Context, prompt, mimeType, data string) (string, error)
}

// ProviderRouter picks a model and prompt per request, streams from the
// primary provider and falls back to the secondary one exactly once.
type ProviderRouter struct {
	transport    *StreamingTransport
	secondary    SecondaryProvider
	vision       VisionProvider
	budget       *Budget
	logger       logrus.FieldLogger
	metrics      Recorder
	httpClient   *http.Client
	defaultModel string
	now          func() time.Time
}

// RouterOption configures a ProviderRouter
type RouterOption func(*ProviderRouter)

// WithSecondary replaces the default Gemini secondary provider
func WithSecondary(p SecondaryProvider) RouterOption {
	return func(r *ProviderRouter) {
		r.secondary = p
	}
}

// WithVision replaces the default Gemini vision provider
func WithVision(v VisionProvider) RouterOption {
	return func(r *ProviderRouter) {
		r.vision = v
	}
}

// WithBudget enables the advisory client-side budget
func WithBudget(b *Budget) RouterOption {
	return func(r *ProviderRouter) {
		r.budget = b
	}
}

// WithLogger sets the router and transport logger
func WithLogger(logger logrus.FieldLogger) RouterOption {
	return func(r *ProviderRouter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(recorder Recorder) RouterOption {
	return func(r *ProviderRouter) {
		if recorder != nil {
			r.metrics = recorder
		}
	}
}

// WithHTTPClient sets the HTTP client for the transport and default providers
func WithHTTPClient(client *http.Client) RouterOption {
	return func(r *ProviderRouter) {
		r.httpClient = client
	}
}

// NewProviderRouter creates a router. It fails with a *ConfigurationError
// when the proxy endpoint or the secondary credential is missing.
func NewProviderRouter(cfg Config, opts ...RouterOption) (*ProviderRouter, error) {
	r := &ProviderRouter{
		logger:       discardLogger(),
		metrics:      noopRecorder{},
		defaultModel: cfg.DefaultModel,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	t, err := NewStreamingTransport(cfg,
		WithStreamClient(r.httpClient),
		WithStreamLogger(r.logger),
		WithStreamMetrics(r.metrics),
	)
	if err != nil {
		return nil, err
	}
	r.transport = t

	if r.secondary == nil || r.vision == nil {
		if cfg.SecondaryAPIKey == "" {
			return nil, &ConfigurationError{Field: "SecondaryAPIKey", Reason: "is not set"}
		}
		client := gemini.NewClient(cfg.SecondaryAPIKey,
			gemini.WithBaseURL(cfg.SecondaryBaseURL),
			gemini.WithModel(cfg.SecondaryModel),
			gemini.WithVisionModel(cfg.VisionModel),
			gemini.WithHTTPClient(r.httpClient),
		)
		if r.secondary == nil {
			r.secondary = client
		}
		if r.vision == nil {
			r.vision = client
		}
	}

	return r, nil
}

// Route answers one chat message. It makes exactly one pass: the primary
// provider with its model fallback list, then the secondary provider once.
func (r *ProviderRouter) Route(ctx context.Context, req RouteRequest) (*Result, error) {
	modeID, mode := ResolveMode(req.Mode)
	personality := req.Personality
	if !HasPersonality(personality) {
		personality = DefaultPersonality
	}
	systemPrompt := SystemPrompt(personality)
	log := r.logger.WithFields(logrus.Fields{
		"mode":        modeID,
		"personality": personality,
	})

	if r.budget != nil {
		estimate := EstimateRequestTokens(req.Message, req.ConversationHistory)
		if notice := r.budget.Admit(req.ClientKey, modeID, mode, estimate); notice != nil {
			log.WithField("reason", notice.Reason).Info("request held back by client budget")
			return &Result{Mode: modeID, Notice: notice}, nil
		}
	}

	model := mode.ProviderModelID
	if model == "" {
		model = r.defaultModel
	}

	history := append([]ChatTurn(nil), req.ConversationHistory...)

	log.WithField("model", model).Debug("attempting primary provider")
	streamed, attempts, err := r.transport.Stream(ctx, StreamRequest{
		Message:             req.Message,
		SystemPrompt:        systemPrompt,
		Model:               model,
		ConversationHistory: history,
		MaxTokens:           mode.MaxTokens,
		OnChunk:             req.OnChunk,
		OnRetry:             req.OnRetry,
	})
	if err == nil {
		return &Result{
			Text:       streamed.Text,
			Model:      mode.DisplayName,
			ModelID:    streamed.Model,
			Provider:   PrimaryProvider,
			Mode:       modeID,
			TokenCount: streamed.TokenCount,
			LatencyMs:  streamed.LatencyMs,
			Attempts:   attempts,
		}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	log.WithError(err).Warn("primary provider exhausted, trying secondary")

	start := r.now()
	text, secErr := r.secondary.Complete(ctx, systemPrompt, req.Message)
	latency := r.now().Sub(start)
	r.metrics.RecordRequest(r.secondary.Name(), r.secondary.Model(), secErr == nil, latency)
	if secErr == nil {
		tokens := EstimateTokens(text)
		r.metrics.RecordTokens(r.secondary.Name(), tokens)
		return &Result{
			Text:       text,
			Model:      r.secondary.Name() + " (fallback)",
			Provider:   strings.ToLower(r.secondary.Name()),
			Mode:       modeID,
			TokenCount: tokens,
			LatencyMs:  latency.Milliseconds(),
			Attempts:   attempts,
		}, nil
	}

	attempts = append(attempts, Attempt{Provider: strings.ToLower(r.secondary.Name()), Err: secErr})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	log.WithFields(logrus.Fields{
		"attempts": len(attempts),
		"error":    secErr.Error(),
	}).Error("all AI providers failed")
	return nil, &ProviderUnavailableError{Attempts: attempts}
}

// RouteVision sends an image to the vision provider. There is no streaming
// and no fallback; the first failure is returned.
func (r *ProviderRouter) RouteVision(ctx context.Context, req VisionRequest) (*Result, error) {
	if r.vision == nil {
		return nil, &ConfigurationError{Field: "SecondaryAPIKey", Reason: "is not set"}
	}

	data := dataURLPrefix.ReplaceAllString(strings.TrimSpace(req.ImageBase64), "")
	if data == "" {
		return nil, ErrEmptyImage
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = defaultVisionMIMEType
	}

	start := r.now()
	text, err := r.vision.Describe(ctx, VisionPrompt, mimeType, data)
	latency := r.now().Sub(start)
	r.metrics.RecordRequest("vision", mimeType, err == nil, latency)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, gemini.ErrMissingAPIKey) {
			return nil, &ConfigurationError{Field: "SecondaryAPIKey", Reason: "is not set"}
		}
		r.logger.WithError(err).Warn("vision request failed")
		return nil, &TransportError{Provider: "vision", Err: err}
	}

	return &Result{
		Text:       text,
		Model:      VisionDisplayName,
		Provider:   "vision",
		TokenCount: EstimateTokens(text),
		LatencyMs:  latency.Milliseconds(),
	}, nil
}
