package domain

import (
	"time"

	"github.com/google/uuid"
)

// MeetingStatus is the lifecycle state of a meeting.
// Transitions only move forward: upcoming -> active -> processing -> completed,
// with upcoming -> cancelled as the only other legal edge.
type MeetingStatus string

const (
	MeetingStatusUpcoming   MeetingStatus = "upcoming"
	MeetingStatusActive     MeetingStatus = "active"
	MeetingStatusProcessing MeetingStatus = "processing"
	MeetingStatusCompleted  MeetingStatus = "completed"
	MeetingStatusCancelled  MeetingStatus = "cancelled"
)

// IsTerminal reports whether no further lifecycle writes may occur.
func (s MeetingStatus) IsTerminal() bool {
	return s == MeetingStatusCompleted || s == MeetingStatusCancelled
}

// Meeting represents a scheduled AI-assisted call session.
// Maps to the meetings table. TranscriptURL and Summary stay NULL until the
// lifecycle has reached processing/completed respectively.
type Meeting struct {
	MeetingID     uuid.UUID     `json:"meeting_id" db:"meeting_id"`
	Name          string        `json:"name" db:"name"`
	UserID        uuid.UUID     `json:"user_id" db:"user_id"`
	AgentID       uuid.UUID     `json:"agent_id" db:"agent_id"`
	Status        MeetingStatus `json:"status" db:"status"`
	StartedAt     *time.Time    `json:"started_at,omitempty" db:"started_at"`
	EndedAt       *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
	TranscriptURL *string       `json:"transcript_url,omitempty" db:"transcript_url"`
	RecordingURL  *string       `json:"recording_url,omitempty" db:"recording_url"`
	Summary       *string       `json:"summary,omitempty" db:"summary"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Duration returns the call length in seconds, or 0 while timestamps are unset.
func (m *Meeting) Duration() int {
	if m.StartedAt == nil || m.EndedAt == nil {
		return 0
	}
	return int(m.EndedAt.Sub(*m.StartedAt).Seconds())
}
