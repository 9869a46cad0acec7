package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/repository"
	"github.com/studymate/studymate-backend/internal/services"
)

// errorStatus maps a service error to an HTTP status and a message that is
// safe to show to end users
func errorStatus(err error) (int, string) {
	var cfgErr *llm.ConfigurationError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fiber.StatusNotFound, "Conversation not found"
	case errors.Is(err, services.ErrHistoryUnavailable):
		return fiber.StatusServiceUnavailable, "Conversation history is not available"
	case errors.Is(err, llm.ErrEmptyImage):
		return fiber.StatusBadRequest, llm.PublicMessage(err)
	case errors.As(err, &cfgErr):
		return fiber.StatusServiceUnavailable, llm.PublicMessage(err)
	default:
		return fiber.StatusServiceUnavailable, llm.UnavailableMessage
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	status, message := errorStatus(err)
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func setSSEHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}
