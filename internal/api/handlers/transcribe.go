package handlers

import (
	"bytes"
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/api/models"
	"github.com/studymate/studymate-backend/internal/providers"
)

var audioDataURL = regexp.MustCompile(`^data:audio/[\w.+-]+(;[\w=.+-]+)*;base64,`)

// TranscribeHandler turns recorded speech into text
type TranscribeHandler struct {
	transcriber providers.Transcriber
	logger      logrus.FieldLogger
}

// NewTranscribeHandler creates a transcription handler
func NewTranscribeHandler(transcriber providers.Transcriber, logger logrus.FieldLogger) *TranscribeHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TranscribeHandler{transcriber: transcriber, logger: logger.WithField("handler", "whisper")}
}

// Transcribe handles POST /api/whisper
func (h *TranscribeHandler) Transcribe(c *fiber.Ctx) error {
	var req models.TranscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	encoded := audioDataURL.ReplaceAllString(strings.TrimSpace(req.Audio), "")
	if encoded == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No audio provided",
		})
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(audio) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No audio provided",
		})
	}

	if h.transcriber == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to transcribe audio",
			"details": "GROQ_API_KEY not configured",
		})
	}

	text, err := h.transcriber.Transcribe(c.UserContext(), providers.TranscriptionRequest{
		Audio: bytes.NewReader(audio),
	})
	if err != nil {
		h.logger.WithError(err).WithField("bytes", len(audio)).Warn("transcription failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to transcribe audio",
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"text": text})
}
