package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeMeetingProcessing is the post-call completion task
const TypeMeetingProcessing = "meetings/processing"

// MeetingProcessingPayload carries everything the completion job needs
type MeetingProcessingPayload struct {
	MeetingID     string `json:"meeting_id"`
	TranscriptURL string `json:"transcript_url"`
}

// NewMeetingProcessingTask builds the completion task for a meeting. The task
// id is derived from the meeting id so a redelivered transcription event can
// not stack up duplicate jobs while one is pending.
func NewMeetingProcessingTask(meetingID uuid.UUID, transcriptURL string) (*asynq.Task, error) {
	payload, err := json.Marshal(MeetingProcessingPayload{
		MeetingID:     meetingID.String(),
		TranscriptURL: transcriptURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processing payload: %w", err)
	}

	return asynq.NewTask(TypeMeetingProcessing, payload,
		asynq.TaskID(fmt.Sprintf("meeting:%s", meetingID)),
		asynq.MaxRetry(10),
		asynq.Retention(24*time.Hour),
	), nil
}
