package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/studymate/studymate-backend/internal/llm"
)

// SystemHandler serves health, mode and metrics endpoints
type SystemHandler struct {
	metrics *llm.MetricsCollector
	started time.Time
	history bool
}

// NewSystemHandler creates a system handler
func NewSystemHandler(metrics *llm.MetricsCollector, historyEnabled bool) *SystemHandler {
	return &SystemHandler{metrics: metrics, started: time.Now(), history: historyEnabled}
}

// Health handles GET /health
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "studymate-backend",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"history": h.history,
	})
}

type modeInfo struct {
	ID string `json:"id"`
	llm.ModeConfig
}

// Modes handles GET /api/v1/modes
func (h *SystemHandler) Modes(c *fiber.Ctx) error {
	ids := llm.ModeIDs()
	modes := make([]modeInfo, 0, len(ids))
	for _, id := range ids {
		_, mode := llm.ResolveMode(id)
		modes = append(modes, modeInfo{ID: id, ModeConfig: mode})
	}
	return c.JSON(fiber.Map{"modes": modes})
}

// Metrics handles GET /api/v1/metrics
func (h *SystemHandler) Metrics(c *fiber.Ctx) error {
	if h.metrics == nil {
		return c.JSON(llm.Snapshot{})
	}
	return c.JSON(h.metrics.Snapshot())
}

// ResetMetrics handles DELETE /api/v1/metrics
func (h *SystemHandler) ResetMetrics(c *fiber.Ctx) error {
	if h.metrics != nil {
		h.metrics.Reset()
	}
	return c.SendStatus(fiber.StatusNoContent)
}
