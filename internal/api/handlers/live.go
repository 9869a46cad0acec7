package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/api/middleware"
	"github.com/studymate/studymate-backend/internal/services"
)

const liveConversationKey = "live_conversation_id"

// LiveHandler pushes newly saved messages to open conversation views
type LiveHandler struct {
	chat   *services.ChatService
	hub    *services.Hub
	logger logrus.FieldLogger
}

// NewLiveHandler creates a live feed handler. hub may be nil when no
// database is configured.
func NewLiveHandler(chat *services.ChatService, hub *services.Hub, logger logrus.FieldLogger) *LiveHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LiveHandler{chat: chat, hub: hub, logger: logger.WithField("handler", "live")}
}

// Guard runs before the upgrade and checks that the caller owns the
// conversation
func (h *LiveHandler) Guard(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if h.hub == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Conversation history is not available",
		})
	}

	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required for WebSocket",
		})
	}
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}

	owns, err := h.chat.OwnsConversation(c.UserContext(), userID, conversationID)
	if err != nil {
		return errorResponse(c, err)
	}
	if !owns {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Conversation not found",
		})
	}

	c.Locals(liveConversationKey, conversationID)
	return c.Next()
}

// Stream handles GET /api/v1/conversations/:id/live after Guard
func (h *LiveHandler) Stream(conn *websocket.Conn) {
	defer conn.Close()

	conversationID, ok := conn.Locals(liveConversationKey).(uuid.UUID)
	if !ok {
		return
	}

	sub := h.hub.Subscribe(conversationID)
	defer sub.Close()

	log := h.logger.WithField("conversation_id", conversationID)
	log.Debug("live subscriber connected")

	// the feed is one-way; reading only notices the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Debug("live subscriber disconnected")
			return
		case message, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(fiber.Map{"type": "message", "message": message}); err != nil {
				return
			}
		}
	}
}
