package handlers

import (
	"bufio"
	"context"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/api/middleware"
	"github.com/studymate/studymate-backend/internal/api/models"
	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/services"
)

// ClientIPKey holds the caller's address on upgraded WebSocket connections
const ClientIPKey = "client_ip"

// ChatHandler streams routed answers over SSE and WebSocket
type ChatHandler struct {
	chat   *services.ChatService
	logger logrus.FieldLogger
}

// NewChatHandler creates a chat handler
func NewChatHandler(chat *services.ChatService, logger logrus.FieldLogger) *ChatHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChatHandler{chat: chat, logger: logger.WithField("handler", "chat")}
}

// newChatRequest validates a client request. userID is uuid.Nil for guests.
func newChatRequest(body models.ChatRequest, userID uuid.UUID, clientKey string) (services.ChatRequest, error) {
	if strings.TrimSpace(body.Message) == "" {
		return services.ChatRequest{}, fiber.NewError(fiber.StatusBadRequest, "Message is required")
	}
	conversationID, err := models.ParseConversationID(body.ConversationID)
	if err != nil {
		return services.ChatRequest{}, fiber.NewError(fiber.StatusBadRequest, "Invalid conversation ID")
	}
	return services.ChatRequest{
		UserID:         userID,
		ConversationID: conversationID,
		Message:        body.Message,
		Mode:           body.Mode,
		Personality:    body.Personality,
		History:        models.Turns(body.ConversationHistory),
		ClientKey:      clientKey,
		Temporary:      body.Temporary,
	}, nil
}

func userIDOf(user *models.UserContext) uuid.UUID {
	if user == nil {
		return uuid.Nil
	}
	return user.UserID
}

// Stream handles POST /api/v1/chat
func (h *ChatHandler) Stream(c *fiber.Ctx) error {
	var body models.ChatRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req, err := newChatRequest(body, userIDOf(middleware.GetUserContext(c)), c.IP())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	log := h.logger.WithFields(logrus.Fields{"mode": req.Mode, "guest": req.UserID == uuid.Nil})

	setSSEHeaders(c)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// a failed write means the client is gone; stop the route
		write := func(v interface{}) {
			if ctx.Err() != nil {
				return
			}
			if err := llm.WriteFrame(w, v); err != nil {
				cancel()
				return
			}
			if err := w.Flush(); err != nil {
				cancel()
			}
		}

		req.OnChunk = func(fragment string) {
			write(fiber.Map{"content": fragment})
		}
		req.OnRetry = func(failedModel string, _ error) {
			write(fiber.Map{"reset": true, "model": failedModel})
		}

		resp, err := h.chat.Send(ctx, req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				log.Debug("client went away")
				return
			}
			log.WithError(err).Warn("chat failed")
			_, message := errorStatus(err)
			write(fiber.Map{"error": message})
		case resp.Notice != nil:
			write(fiber.Map{
				"notice":       resp.Notice.Message,
				"reason":       resp.Notice.Reason,
				"retryAfterMs": resp.Notice.RetryAfter.Milliseconds(),
			})
		default:
			done := fiber.Map{
				"done":       true,
				"text":       resp.Text,
				"model":      resp.Model,
				"tokenCount": resp.TokenCount,
				"latencyMs":  resp.LatencyMs,
			}
			if resp.ConversationID != uuid.Nil {
				done["conversationId"] = resp.ConversationID.String()
			}
			write(done)
		}
		if ctx.Err() == nil {
			_ = llm.WriteDone(w)
			_ = w.Flush()
		}
	})
	return nil
}

// StreamWS handles GET /api/v1/chat/ws. Each text message is one chat
// request; requests on one connection are answered in order.
func (h *ChatHandler) StreamWS(conn *websocket.Conn) {
	defer conn.Close()

	userID := userIDOf(middleware.UserContextFrom(conn.Locals(middleware.UserContextKey)))
	clientKey, _ := conn.Locals(ClientIPKey).(string)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan models.ChatRequest)
	go func() {
		defer close(requests)
		// closing the socket is the only way out of ReadJSON
		defer cancel()
		for {
			var body models.ChatRequest
			if err := conn.ReadJSON(&body); err != nil {
				return
			}
			select {
			case requests <- body:
			case <-ctx.Done():
				return
			}
		}
	}()

	var mu sync.Mutex
	send := func(event models.StreamEvent) bool {
		mu.Lock()
		defer mu.Unlock()
		if err := conn.WriteJSON(event); err != nil {
			cancel()
			return false
		}
		return true
	}

	for body := range requests {
		req, err := newChatRequest(body, userID, clientKey)
		if err != nil {
			if !send(models.StreamEvent{Type: models.EventError, Error: err.Error()}) {
				return
			}
			continue
		}
		if !h.answer(ctx, req, send) {
			return
		}
	}
}

// answer runs one request and reports whether the connection is still usable
func (h *ChatHandler) answer(ctx context.Context, req services.ChatRequest, send func(models.StreamEvent) bool) bool {
	req.OnChunk = func(fragment string) {
		send(models.StreamEvent{Type: models.EventChunk, Content: fragment})
	}
	req.OnRetry = func(failedModel string, _ error) {
		send(models.StreamEvent{Type: models.EventReset, Model: failedModel})
	}

	resp, err := h.chat.Send(ctx, req)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		h.logger.WithError(err).Warn("chat failed")
		_, message := errorStatus(err)
		return send(models.StreamEvent{Type: models.EventError, Error: message})
	}
	if resp.Notice != nil {
		return send(models.StreamEvent{
			Type:         models.EventNotice,
			Mode:         resp.Mode,
			Reason:       resp.Notice.Reason,
			Notice:       resp.Notice.Message,
			RetryAfterMs: resp.Notice.RetryAfter.Milliseconds(),
		})
	}

	event := models.StreamEvent{
		Type:       models.EventDone,
		Text:       resp.Text,
		Model:      resp.Model,
		Mode:       resp.Mode,
		TokenCount: resp.TokenCount,
		LatencyMs:  resp.LatencyMs,
	}
	if resp.ConversationID != uuid.Nil {
		event.ConversationID = resp.ConversationID.String()
	}
	return send(event)
}
