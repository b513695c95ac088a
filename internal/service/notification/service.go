package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/push"

	"go.uber.org/zap"
)

// Pusher delivers a notification to all of a user's devices
type Pusher interface {
	SendToUser(ctx context.Context, notification *push.Notification, userID uuid.UUID) error
	RegisterToken(ctx context.Context, token *push.Token) error
	UnregisterToken(ctx context.Context, token string) error
}

// Service handles user-facing notifications
type Service struct {
	pusher Pusher
}

// NewService creates a new notification service
func NewService(pusher Pusher) *Service {
	return &Service{pusher: pusher}
}

// RegisterDeviceInput contains a device registration
type RegisterDeviceInput struct {
	UserID   uuid.UUID
	Token    string
	Type     push.TokenType
	DeviceID string
	Platform string
}

// RegisterDevice stores a device token for push delivery
func (s *Service) RegisterDevice(ctx context.Context, input *RegisterDeviceInput) error {
	token := &push.Token{
		UserID:   input.UserID,
		Token:    input.Token,
		Type:     input.Type,
		DeviceID: input.DeviceID,
		Platform: input.Platform,
		Active:   true,
	}

	if err := s.pusher.RegisterToken(ctx, token); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	return nil
}

// UnregisterDevice removes a device token
func (s *Service) UnregisterDevice(ctx context.Context, token string) error {
	return s.pusher.UnregisterToken(ctx, token)
}

// NotifySummaryReady tells the meeting owner their recap is available.
// Delivery is best-effort; a completed meeting is never held hostage by a
// push failure.
func (s *Service) NotifySummaryReady(ctx context.Context, userID, meetingID uuid.UUID, meetingName string) error {
	notification := &push.Notification{
		Title:    "Meeting summary ready",
		Body:     fmt.Sprintf("Your recap for %q is ready to view", meetingName),
		Priority: "normal",
		Sound:    "default",
		Data: map[string]string{
			"type":       "summary_ready",
			"meeting_id": meetingID.String(),
		},
	}

	if err := s.pusher.SendToUser(ctx, notification, userID); err != nil {
		return fmt.Errorf("failed to notify summary ready: %w", err)
	}

	logger.Info("Summary-ready notification sent",
		zap.String("meeting_id", meetingID.String()),
		zap.String("user_id", userID.String()))

	return nil
}
