package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/studymate/studymate-backend/internal/api/middleware"
	"github.com/studymate/studymate-backend/internal/repository"
	"github.com/studymate/studymate-backend/internal/services"
)

// ConversationHandler serves the signed-in user's chat history
type ConversationHandler struct {
	chat *services.ChatService
}

// NewConversationHandler creates a conversation handler
func NewConversationHandler(chat *services.ChatService) *ConversationHandler {
	return &ConversationHandler{chat: chat}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Not authenticated")
	}

	conversations, err := h.chat.ListConversations(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, err)
	}
	if conversations == nil {
		conversations = []repository.Conversation{}
	}
	return c.JSON(fiber.Map{"conversations": conversations})
}

// Messages handles GET /api/v1/conversations/:id/messages
func (h *ConversationHandler) Messages(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Not authenticated")
	}
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}

	messages, err := h.chat.Messages(c.UserContext(), userID, conversationID)
	if err != nil {
		return errorResponse(c, err)
	}
	if messages == nil {
		messages = []repository.Message{}
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// Delete handles DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Not authenticated")
	}
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}

	if err := h.chat.DeleteConversation(c.UserContext(), userID, conversationID); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
