package meeting

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/repository/postgres"
	meetingsvc "meetassist-backend/internal/service/meeting"
	"meetassist-backend/pkg/response"
)

// MeetingService drives meeting lifecycle operations
type MeetingService interface {
	Create(ctx context.Context, input *meetingsvc.CreateInput) (*meetingsvc.CreateOutput, error)
	Get(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error)
	Cancel(ctx context.Context, meetingID, userID uuid.UUID) (bool, error)
	Delete(ctx context.Context, meetingID, userID uuid.UUID) error
	IssueVideoToken(ctx context.Context, userID uuid.UUID) (*meetingsvc.TokenOutput, error)
	IssueChatToken(ctx context.Context, userID uuid.UUID) (*meetingsvc.TokenOutput, error)
}

// TranscriptService serves resolved transcripts
type TranscriptService interface {
	GetForMeeting(ctx context.Context, meetingID, userID uuid.UUID) ([]*domain.TranscriptEntry, error)
}

// Handler handles meeting HTTP requests
type Handler struct {
	meetingService    MeetingService
	transcriptService TranscriptService
}

// NewHandler creates a new meeting handler
func NewHandler(meetingService MeetingService, transcriptService TranscriptService) *Handler {
	return &Handler{
		meetingService:    meetingService,
		transcriptService: transcriptService,
	}
}

// CreateRequest represents meeting creation
type CreateRequest struct {
	Name    string `json:"name" binding:"required,min=1,max=200"`
	AgentID string `json:"agent_id" binding:"required,uuid"`
}

// Create schedules a new meeting
// POST /v1/meetings
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		response.ValidationError(c, "Invalid agent ID")
		return
	}

	output, err := h.meetingService.Create(c.Request.Context(), &meetingsvc.CreateInput{
		Name:    req.Name,
		UserID:  userID,
		AgentID: agentID,
	})
	if err != nil {
		if errors.Is(err, postgres.ErrAgentNotFound) {
			response.NotFound(c, "Agent not found")
			return
		}
		response.InternalError(c, "Failed to create meeting")
		return
	}

	response.Success(c, http.StatusCreated, output.Meeting)
}

// Get returns a meeting the caller owns
// GET /v1/meetings/:id
func (h *Handler) Get(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid meeting ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	meeting, err := h.meetingService.Get(c.Request.Context(), meetingID, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrMeetingNotFound) {
			response.NotFound(c, "Meeting not found")
			return
		}
		response.InternalError(c, "Failed to get meeting")
		return
	}

	response.Success(c, http.StatusOK, meeting)
}

// List returns the caller's meetings
// GET /v1/meetings
func (h *Handler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	meetings, err := h.meetingService.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(c, "Failed to list meetings")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"meetings": meetings,
		"limit":    limit,
		"offset":   offset,
	})
}

// Cancel moves an upcoming meeting to cancelled
// POST /v1/meetings/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid meeting ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	applied, err := h.meetingService.Cancel(c.Request.Context(), meetingID, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrMeetingNotFound) {
			response.NotFound(c, "Meeting not found")
			return
		}
		response.InternalError(c, "Failed to cancel meeting")
		return
	}

	if !applied {
		response.Conflict(c, "Meeting already started")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"meeting_id": meetingID,
		"status":     domain.MeetingStatusCancelled,
	})
}

// Delete removes a meeting the caller owns
// DELETE /v1/meetings/:id
func (h *Handler) Delete(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid meeting ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.meetingService.Delete(c.Request.Context(), meetingID, userID); err != nil {
		if errors.Is(err, postgres.ErrMeetingNotFound) {
			response.NotFound(c, "Meeting not found")
			return
		}
		response.InternalError(c, "Failed to delete meeting")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Transcript returns the resolved transcript for a completed meeting
// GET /v1/meetings/:id/transcript
func (h *Handler) Transcript(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid meeting ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	entries, err := h.transcriptService.GetForMeeting(c.Request.Context(), meetingID, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrMeetingNotFound) {
			response.NotFound(c, "Meeting not found")
			return
		}
		response.InternalError(c, "Failed to load transcript")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"meeting_id": meetingID,
		"transcript": entries,
	})
}

// VideoToken issues a call provider token for the caller
// POST /v1/meetings/tokens/video
func (h *Handler) VideoToken(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	token, err := h.meetingService.IssueVideoToken(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "Failed to issue video token")
		return
	}

	response.Success(c, http.StatusOK, token)
}

// ChatToken issues a chat provider token for the caller
// POST /v1/meetings/tokens/chat
func (h *Handler) ChatToken(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	token, err := h.meetingService.IssueChatToken(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "Failed to issue chat token")
		return
	}

	response.Success(c, http.StatusOK, token)
}

// currentUserID pulls the authenticated user id set by the auth middleware
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}

	return userID, true
}
