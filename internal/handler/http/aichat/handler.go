package aichat

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meetassist-backend/internal/service/ai"
	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/metrics"
	"meetassist-backend/pkg/resilience"

	"go.uber.org/zap"
)

// AIService answers in-call questions
type AIService interface {
	Ask(ctx context.Context, input *ai.AskInput) (string, error)
}

// Handler serves the live call's question endpoint. The call-session client
// expects the bare {textdata} shape, so responses bypass the API envelope.
type Handler struct {
	aiService AIService
	metrics   *metrics.Metrics
}

// NewHandler creates a new AI chat handler
func NewHandler(aiService AIService, m *metrics.Metrics) *Handler {
	return &Handler{
		aiService: aiService,
		metrics:   m,
	}
}

// ChatRequest is a live-call question
type ChatRequest struct {
	MeetingID   string `json:"meetingId" binding:"required,uuid"`
	MeetingName string `json:"meetingName"`
	Text        string `json:"text" binding:"required"`
}

// Chat answers a question against a meeting's agent
// POST /v1/ai/chat
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	meetingID, err := uuid.Parse(req.MeetingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid meeting id"})
		return
	}

	start := time.Now()
	reply, err := h.aiService.Ask(c.Request.Context(), &ai.AskInput{
		MeetingID:   meetingID,
		MeetingName: req.MeetingName,
		Text:        req.Text,
	})

	if h.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = resilience.ClassifyError(err)
		}
		h.metrics.RecordAIRequest("ask", outcome, time.Since(start))
	}

	if err != nil {
		logger.Error("AI chat failed",
			zap.String("meeting_id", req.MeetingID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"textdata": reply})
}
