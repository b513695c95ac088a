package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/service/ai"
	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/metrics"

	"go.uber.org/zap"
)

// SignatureVerifier checks a webhook body against its signature header
type SignatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// MeetingService applies call lifecycle events
type MeetingService interface {
	HandleSessionStarted(ctx context.Context, meetingID uuid.UUID) (bool, error)
	HandleSessionEnded(ctx context.Context, meetingID uuid.UUID) (bool, error)
	HandleTranscriptionReady(ctx context.Context, meetingID uuid.UUID, transcriptURL string) error
}

// AIService runs the post-call reply pipeline
type AIService interface {
	HandleChannelMessage(ctx context.Context, input *ai.ChannelMessageInput) (bool, error)
}

type eventHandler func(c *gin.Context, event *domain.WebhookEvent) error

// Handler is the provider webhook ingress. The wire contract is the
// provider's, not ours, so responses bypass the API envelope: 200
// {"status":"ok"} for anything accepted or ignored, 4xx only for requests
// that fail verification before dispatch.
type Handler struct {
	verifier SignatureVerifier
	meetings MeetingService
	ai       AIService
	metrics  *metrics.Metrics

	handlers map[string]eventHandler
}

// NewHandler creates the webhook handler and its event dispatch table
func NewHandler(verifier SignatureVerifier, meetings MeetingService, aiService AIService, m *metrics.Metrics) *Handler {
	h := &Handler{
		verifier: verifier,
		meetings: meetings,
		ai:       aiService,
		metrics:  m,
	}

	h.handlers = map[string]eventHandler{
		domain.EventCallSessionStarted:     h.handleSessionStarted,
		domain.EventCallSessionEnded:       h.handleSessionEnded,
		domain.EventCallTranscriptionReady: h.handleTranscriptionReady,
		domain.EventMessageNew:             h.handleMessageNew,
	}

	return h
}

// Handle processes POST /webhook
func (h *Handler) Handle(c *gin.Context) {
	signature := c.GetHeader("x-signature")
	apiKey := c.GetHeader("x-api-key")

	if signature == "" || apiKey == "" {
		h.reject(c, "missing_headers")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing headers"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		h.reject(c, "unreadable_body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
		return
	}

	// Verification runs over the exact raw bytes; parsing comes after.
	if !h.verifier.VerifySignature(body, signature) {
		h.reject(c, "bad_signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.reject(c, "bad_json")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	handler, ok := h.handlers[event.Type]
	if !ok {
		// Unknown event types acknowledge and drop.
		h.record(event.Type, "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := handler(c, &event); err != nil {
		logger.Error("Webhook event failed",
			zap.String("event_type", event.Type),
			zap.Error(err))
		h.record(event.Type, "error")
		// Non-2xx makes the provider redeliver; the conditional transitions
		// keep the retry harmless.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	h.record(event.Type, "ok")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleSessionStarted(c *gin.Context, event *domain.WebhookEvent) error {
	meetingID, ok := meetingIDFromCall(event)
	if !ok {
		return nil
	}

	_, err := h.meetings.HandleSessionStarted(c.Request.Context(), meetingID)
	return err
}

func (h *Handler) handleSessionEnded(c *gin.Context, event *domain.WebhookEvent) error {
	meetingID, ok := meetingIDFromCall(event)
	if !ok {
		return nil
	}

	_, err := h.meetings.HandleSessionEnded(c.Request.Context(), meetingID)
	return err
}

func (h *Handler) handleTranscriptionReady(c *gin.Context, event *domain.WebhookEvent) error {
	// The transcription event has no custom data; the meeting id rides in the
	// composite call cid ("default:<meeting id>").
	parts := strings.SplitN(event.CallCID, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil
	}

	meetingID, err := uuid.Parse(parts[1])
	if err != nil {
		return nil
	}

	if event.CallTranscription == nil || event.CallTranscription.URL == "" {
		return nil
	}

	return h.meetings.HandleTranscriptionReady(c.Request.Context(), meetingID, event.CallTranscription.URL)
}

func (h *Handler) handleMessageNew(c *gin.Context, event *domain.WebhookEvent) error {
	if event.User == nil || event.User.ID == "" ||
		event.ChannelID == "" ||
		event.Message == nil || event.Message.Text == "" {
		return nil
	}

	channelID, err := uuid.Parse(event.ChannelID)
	if err != nil {
		return nil
	}

	_, err = h.ai.HandleChannelMessage(c.Request.Context(), &ai.ChannelMessageInput{
		SenderID:   event.User.ID,
		SenderName: event.User.Name,
		ChannelID:  channelID,
		Text:       event.Message.Text,
	})
	if err != nil {
		// Reply failures never bounce the webhook; the provider would only
		// redeliver the same message.
		logger.Error("Reply pipeline failed",
			zap.String("channel_id", event.ChannelID),
			zap.Error(err))
	}

	return nil
}

func meetingIDFromCall(event *domain.WebhookEvent) (uuid.UUID, bool) {
	if event.Call == nil || event.Call.Custom.MeetingID == "" {
		return uuid.Nil, false
	}

	meetingID, err := uuid.Parse(event.Call.Custom.MeetingID)
	if err != nil {
		return uuid.Nil, false
	}

	return meetingID, true
}

func (h *Handler) record(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(eventType, outcome)
	}
}

func (h *Handler) reject(c *gin.Context, reason string) {
	logger.Warn("Webhook rejected",
		zap.String("reason", reason),
		zap.String("remote_addr", c.ClientIP()))
	if h.metrics != nil {
		h.metrics.RecordWebhookRejected(reason)
	}
}
