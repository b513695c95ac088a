package callsession

import (
	"context"

	"github.com/google/uuid"

	"meetassist-backend/internal/service/ai"
)

// AskService is the slice of the AI service the session needs
type AskService interface {
	Ask(ctx context.Context, input *ai.AskInput) (string, error)
}

// ServiceAnswerer answers utterances through the in-process AI service
type ServiceAnswerer struct {
	service AskService
}

// NewServiceAnswerer creates an Answerer backed by the AI service
func NewServiceAnswerer(service AskService) *ServiceAnswerer {
	return &ServiceAnswerer{service: service}
}

// Answer implements Answerer
func (a *ServiceAnswerer) Answer(ctx context.Context, meetingID uuid.UUID, meetingName, text string) (string, error) {
	return a.service.Ask(ctx, &ai.AskInput{
		MeetingID:   meetingID,
		MeetingName: meetingName,
		Text:        text,
	})
}
