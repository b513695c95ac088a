package device

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meetassist-backend/internal/service/notification"
	"meetassist-backend/pkg/push"
	"meetassist-backend/pkg/response"
)

// NotificationService manages device registrations
type NotificationService interface {
	RegisterDevice(ctx context.Context, input *notification.RegisterDeviceInput) error
	UnregisterDevice(ctx context.Context, token string) error
}

// Handler handles device token HTTP requests
type Handler struct {
	notifications NotificationService
}

// NewHandler creates a new device handler
func NewHandler(notifications NotificationService) *Handler {
	return &Handler{notifications: notifications}
}

// RegisterRequest represents a device registration
type RegisterRequest struct {
	Token    string `json:"token" binding:"required"`
	Type     string `json:"type" binding:"required,oneof=fcm apns web"`
	DeviceID string `json:"device_id"`
	Platform string `json:"platform" binding:"omitempty,oneof=ios android web"`
}

// Register stores a device token for summary-ready pushes
// POST /v1/devices
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return
	}

	err := h.notifications.RegisterDevice(c.Request.Context(), &notification.RegisterDeviceInput{
		UserID:   userID,
		Token:    req.Token,
		Type:     push.TokenType(req.Type),
		DeviceID: req.DeviceID,
		Platform: req.Platform,
	})
	if err != nil {
		response.InternalError(c, "Failed to register device")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"registered": true})
}

// UnregisterRequest removes a device token
type UnregisterRequest struct {
	Token string `json:"token" binding:"required"`
}

// Unregister removes a device token
// DELETE /v1/devices
func (h *Handler) Unregister(c *gin.Context) {
	var req UnregisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.notifications.UnregisterDevice(c.Request.Context(), req.Token); err != nil {
		response.InternalError(c, "Failed to unregister device")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unregistered": true})
}
