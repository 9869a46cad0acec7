package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/api/handlers"
	"github.com/studymate/studymate-backend/internal/api/middleware"
	"github.com/studymate/studymate-backend/internal/auth"
	"github.com/studymate/studymate-backend/internal/providers"
	"github.com/studymate/studymate-backend/internal/services"
)

// Dependencies are everything the HTTP layer needs
type Dependencies struct {
	Services  *services.Services
	Validator *auth.TokenValidator
	// Provider and Transcriber back the raw proxy endpoints; nil answers 500.
	Provider     providers.Provider
	Transcriber  providers.Transcriber
	DefaultModel string
	// ProxyKey, when set, must be presented as a bearer token on the proxy.
	ProxyKey          string
	RequestsPerMinute int
	Logger            logrus.FieldLogger
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	svc := deps.Services
	systemHandler := handlers.NewSystemHandler(svc.Metrics, svc.Chat.HistoryEnabled())
	app.Get("/health", systemHandler.Health)

	// Streaming proxy used by the router and by older clients
	completionHandler := handlers.NewCompletionHandler(deps.Provider, deps.DefaultModel, deps.Logger)
	transcribeHandler := handlers.NewTranscribeHandler(deps.Transcriber, deps.Logger)
	proxyKey := middleware.ProxyKey(deps.ProxyKey)
	app.Post("/api/chat-completion", proxyKey, completionHandler.Complete)
	app.Post("/api/groq", proxyKey, completionHandler.Complete)
	app.Post("/api/whisper", proxyKey, transcribeHandler.Transcribe)

	v1 := app.Group("/api/v1")
	v1.Get("/modes", systemHandler.Modes)
	v1.Get("/metrics", systemHandler.Metrics)
	v1.Delete("/metrics", proxyKey, systemHandler.ResetMetrics)

	// Chat works for guests; signed-in users get their exchanges saved
	chatHandler := handlers.NewChatHandler(svc.Chat, deps.Logger)
	visionHandler := handlers.NewVisionHandler(svc.Chat, deps.Logger)
	optionalAuth := middleware.OptionalAuth(deps.Validator)
	rateLimit := middleware.ChatRateLimit(deps.RequestsPerMinute)
	v1.Post("/chat", optionalAuth, rateLimit, chatHandler.Stream)
	v1.Post("/vision", optionalAuth, rateLimit, visionHandler.Analyze)
	v1.Get("/chat/ws", optionalAuth, rateLimit, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals(handlers.ClientIPKey, c.IP())
		return c.Next()
	}, websocket.New(chatHandler.StreamWS))

	// History
	conversationHandler := handlers.NewConversationHandler(svc.Chat)
	liveHandler := handlers.NewLiveHandler(svc.Chat, svc.Hub, deps.Logger)
	requireAuth := middleware.AuthRequired(deps.Validator)
	v1.Get("/conversations", requireAuth, conversationHandler.List)
	v1.Get("/conversations/:id/messages", requireAuth, conversationHandler.Messages)
	v1.Delete("/conversations/:id", requireAuth, conversationHandler.Delete)
	v1.Get("/conversations/:id/live", requireAuth, liveHandler.Guard, websocket.New(liveHandler.Stream))
}
