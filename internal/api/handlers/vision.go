package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/api/middleware"
	"github.com/studymate/studymate-backend/internal/api/models"
	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/services"
)

// VisionHandler answers questions about uploaded images
type VisionHandler struct {
	chat   *services.ChatService
	logger logrus.FieldLogger
}

// NewVisionHandler creates a vision handler
func NewVisionHandler(chat *services.ChatService, logger logrus.FieldLogger) *VisionHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &VisionHandler{chat: chat, logger: logger.WithField("handler", "vision")}
}

// Analyze handles POST /api/v1/vision
func (h *VisionHandler) Analyze(c *fiber.Ctx) error {
	var body models.VisionRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	conversationID, err := models.ParseConversationID(body.ConversationID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}

	resp, err := h.chat.Vision(c.UserContext(), userIDOf(middleware.GetUserContext(c)), conversationID, llm.VisionRequest{
		ImageBase64: body.Image,
		MIMEType:    body.MIMEType,
	})
	if err != nil {
		h.logger.WithError(err).Warn("vision request failed")
		return errorResponse(c, err)
	}

	out := fiber.Map{
		"text":      resp.Text,
		"model":     resp.Model,
		"latencyMs": resp.LatencyMs,
	}
	if resp.ConversationID != uuid.Nil {
		out["conversationId"] = resp.ConversationID.String()
	}
	return c.JSON(out)
}
