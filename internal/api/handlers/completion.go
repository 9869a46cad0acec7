package handlers

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/api/models"
	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/providers"
)

const (
	defaultCompletionMaxTokens = 4096
	completionTimeout          = 5 * time.Minute
)

var defaultCompletionTemperature float32 = 0.7

// CompletionHandler is the streaming proxy in front of the upstream provider
type CompletionHandler struct {
	provider     providers.Provider
	defaultModel string
	logger       logrus.FieldLogger
}

// NewCompletionHandler creates a completion proxy handler
func NewCompletionHandler(provider providers.Provider, defaultModel string, logger logrus.FieldLogger) *CompletionHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CompletionHandler{
		provider:     provider,
		defaultModel: defaultModel,
		logger:       logger.WithField("handler", "completion"),
	}
}

// Complete handles POST /api/chat-completion
func (h *CompletionHandler) Complete(c *fiber.Ctx) error {
	var req models.CompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	model := req.Model
	if model == "" {
		model = h.defaultModel
	}
	if h.provider == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "GROQ_API_KEY not configured",
			"model": model,
		})
	}

	upstream := BuildMessages(req.SystemPrompt, models.Turns(req.ConversationHistory), req.Message)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultCompletionMaxTokens
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = &defaultCompletionTemperature
	}

	log := h.logger.WithFields(logrus.Fields{"model": model, "messages": len(upstream)})

	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	chunks, err := h.provider.StreamComplete(ctx, providers.CompletionRequest{
		Messages:    upstream,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		cancel()
		log.WithError(err).Warn("upstream rejected completion")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"model": model,
		})
	}

	setSSEHeaders(c)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		for chunk := range chunks {
			if chunk.Error != "" {
				log.WithField("error", chunk.Error).Warn("upstream stream failed")
				_ = llm.WriteFrame(w, fiber.Map{"error": chunk.Error})
				_ = w.Flush()
				return
			}
			if chunk.Delta == "" {
				continue
			}
			if err := llm.WriteFrame(w, fiber.Map{"content": chunk.Delta, "model": model}); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				log.Debug("client went away")
				return
			}
		}
		_ = llm.WriteDone(w)
		_ = w.Flush()
	})
	return nil
}

// BuildMessages orders the upstream message list: system prompt, history,
// then the new user message
func BuildMessages(systemPrompt string, history []llm.ChatTurn, message string) []providers.Message {
	messages := make([]providers.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, providers.Message{Role: string(llm.RoleSystem), Content: systemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, providers.Message{Role: string(turn.Role), Content: turn.Content})
	}
	return append(messages, providers.Message{Role: string(llm.RoleUser), Content: message})
}
