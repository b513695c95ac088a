package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meetassist-backend/internal/domain"
)

// ErrMeetingNotFound is returned when a meeting row does not exist
var ErrMeetingNotFound = errors.New("meeting not found")

// MeetingRepository handles meeting data operations
type MeetingRepository struct {
	pool *pgxpool.Pool
}

// NewMeetingRepository creates a new meeting repository
func NewMeetingRepository(pool *pgxpool.Pool) *MeetingRepository {
	return &MeetingRepository{pool: pool}
}

const meetingColumns = `
	meeting_id, name, user_id, agent_id, status,
	started_at, ended_at, transcript_url, recording_url, summary,
	created_at, updated_at
`

// Create inserts a new meeting row in the upcoming state
func (r *MeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	query := `
		INSERT INTO meetings (
			meeting_id, name, user_id, agent_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		meeting.MeetingID,
		meeting.Name,
		meeting.UserID,
		meeting.AgentID,
		meeting.Status,
		meeting.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create meeting: %w", err)
	}

	return nil
}

// GetByID retrieves a meeting by ID
func (r *MeetingRepository) GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE meeting_id = $1`

	meeting := &domain.Meeting{}
	err := r.pool.QueryRow(ctx, query, meetingID).Scan(
		&meeting.MeetingID,
		&meeting.Name,
		&meeting.UserID,
		&meeting.AgentID,
		&meeting.Status,
		&meeting.StartedAt,
		&meeting.EndedAt,
		&meeting.TranscriptURL,
		&meeting.RecordingURL,
		&meeting.Summary,
		&meeting.CreatedAt,
		&meeting.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}

	return meeting, nil
}

// GetByIDForUser retrieves a meeting owned by a specific user
func (r *MeetingRepository) GetByIDForUser(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error) {
	meeting, err := r.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if meeting.UserID != userID {
		return nil, ErrMeetingNotFound
	}
	return meeting, nil
}

// ListByUser retrieves a user's meetings, newest first
func (r *MeetingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	query := `
		SELECT ` + meetingColumns + `
		FROM meetings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*domain.Meeting
	for rows.Next() {
		meeting := &domain.Meeting{}
		err := rows.Scan(
			&meeting.MeetingID,
			&meeting.Name,
			&meeting.UserID,
			&meeting.AgentID,
			&meeting.Status,
			&meeting.StartedAt,
			&meeting.EndedAt,
			&meeting.TranscriptURL,
			&meeting.RecordingURL,
			&meeting.Summary,
			&meeting.CreatedAt,
			&meeting.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, meeting)
	}

	return meetings, nil
}

// TransitionStatus moves a meeting from an expected prior status to a new one.
// The guard makes redelivered or out-of-order provider events no-ops: the
// write only lands if the row is still in the expected state. Returns true
// when the transition was applied, false when the guard did not match
// (including a missing meeting).
func (r *MeetingRepository) TransitionStatus(ctx context.Context, meetingID uuid.UUID, from, to domain.MeetingStatus, at time.Time) (bool, error) {
	var stampColumn string
	switch to {
	case domain.MeetingStatusActive:
		stampColumn = "started_at"
	case domain.MeetingStatusProcessing:
		stampColumn = "ended_at"
	default:
		stampColumn = ""
	}

	var query string
	if stampColumn != "" {
		query = fmt.Sprintf(`
			UPDATE meetings
			SET status = $3, %s = $4, updated_at = $4
			WHERE meeting_id = $1 AND status = $2
		`, stampColumn)
	} else {
		query = `
			UPDATE meetings
			SET status = $3, updated_at = $4
			WHERE meeting_id = $1 AND status = $2
		`
	}

	tag, err := r.pool.Exec(ctx, query, meetingID, from, to, at)
	if err != nil {
		return false, fmt.Errorf("failed to transition meeting status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SetTranscriptURL persists the transcript location. The URL is monotone data
// rather than a status, so no prior-state guard applies. Returns false when
// the meeting does not exist.
func (r *MeetingRepository) SetTranscriptURL(ctx context.Context, meetingID uuid.UUID, transcriptURL string) (bool, error) {
	query := `
		UPDATE meetings
		SET transcript_url = $2, updated_at = now()
		WHERE meeting_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, meetingID, transcriptURL)
	if err != nil {
		return false, fmt.Errorf("failed to set transcript url: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Complete moves a meeting from processing to completed and writes the
// derived summary in the same conditional update.
func (r *MeetingRepository) Complete(ctx context.Context, meetingID uuid.UUID, summary string) (bool, error) {
	query := `
		UPDATE meetings
		SET status = $2, summary = $3, updated_at = now()
		WHERE meeting_id = $1 AND status = $4
	`

	tag, err := r.pool.Exec(ctx, query,
		meetingID,
		domain.MeetingStatusCompleted,
		summary,
		domain.MeetingStatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete meeting: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SetRecordingURL persists the archive location of the raw transcript
func (r *MeetingRepository) SetRecordingURL(ctx context.Context, meetingID uuid.UUID, recordingURL string) error {
	query := `
		UPDATE meetings
		SET recording_url = $2, updated_at = now()
		WHERE meeting_id = $1
	`

	_, err := r.pool.Exec(ctx, query, meetingID, recordingURL)
	if err != nil {
		return fmt.Errorf("failed to set recording url: %w", err)
	}

	return nil
}

// Delete removes a meeting owned by a user
func (r *MeetingRepository) Delete(ctx context.Context, meetingID, userID uuid.UUID) (bool, error) {
	query := `DELETE FROM meetings WHERE meeting_id = $1 AND user_id = $2`

	tag, err := r.pool.Exec(ctx, query, meetingID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete meeting: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
