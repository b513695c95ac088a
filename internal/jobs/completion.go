package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/repository/postgres"
	"meetassist-backend/internal/service/transcript"
	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/metrics"

	"go.uber.org/zap"
)

// MeetingStore defines the meeting writes the completion job performs
type MeetingStore interface {
	GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error)
	Complete(ctx context.Context, meetingID uuid.UUID, summary string) (bool, error)
	SetRecordingURL(ctx context.Context, meetingID uuid.UUID, recordingURL string) error
}

// TranscriptFetcher fetches and resolves raw transcripts
type TranscriptFetcher interface {
	FetchRaw(ctx context.Context, url string) ([]byte, error)
	ResolveSpeakers(ctx context.Context, items []*domain.TranscriptItem) (map[string]domain.TranscriptSpeaker, error)
}

// Summarizer produces the post-call summary
type Summarizer interface {
	Summarize(ctx context.Context, transcriptText string) (string, error)
}

// Archiver keeps a durable copy of the raw transcript
type Archiver interface {
	Archive(ctx context.Context, meetingID uuid.UUID, body []byte) (string, error)
}

// Notifier tells the owner the summary is ready
type Notifier interface {
	NotifySummaryReady(ctx context.Context, userID, meetingID uuid.UUID, meetingName string) error
}

// CompletionHandler finishes a meeting after its transcript lands: fetch,
// summarize, archive, mark completed, notify. Errors returned plainly are
// retried with backoff; errors wrapped with asynq.SkipRetry are terminal.
type CompletionHandler struct {
	meetings    MeetingStore
	transcripts TranscriptFetcher
	summarizer  Summarizer
	archive     Archiver
	notifier    Notifier
	metrics     *metrics.Metrics
}

// NewCompletionHandler creates the completion task handler. Archive, notifier
// and metrics are optional.
func NewCompletionHandler(
	meetings MeetingStore,
	transcripts TranscriptFetcher,
	summarizer Summarizer,
	archive Archiver,
	notifier Notifier,
	m *metrics.Metrics,
) *CompletionHandler {
	return &CompletionHandler{
		meetings:    meetings,
		transcripts: transcripts,
		summarizer:  summarizer,
		archive:     archive,
		notifier:    notifier,
		metrics:     m,
	}
}

// ProcessTask implements asynq.Handler
func (h *CompletionHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	start := time.Now()
	err := h.process(ctx, task)

	if h.metrics != nil {
		outcome := "ok"
		switch {
		case errors.Is(err, asynq.SkipRetry):
			outcome = "terminal"
		case err != nil:
			outcome = "retry"
		}
		h.metrics.RecordJobRun(TypeMeetingProcessing, outcome, time.Since(start))
	}

	return err
}

func (h *CompletionHandler) process(ctx context.Context, task *asynq.Task) error {
	var payload MeetingProcessingPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}

	if payload.MeetingID == "" {
		logger.Error("Processing task missing meeting id",
			zap.ByteString("payload", task.Payload()))
		return fmt.Errorf("missing meeting id: %w", asynq.SkipRetry)
	}

	meetingID, err := uuid.Parse(payload.MeetingID)
	if err != nil {
		logger.Error("Processing task has invalid meeting id",
			zap.String("meeting_id", payload.MeetingID))
		return fmt.Errorf("invalid meeting id %q: %w", payload.MeetingID, asynq.SkipRetry)
	}

	meeting, err := h.meetings.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, postgres.ErrMeetingNotFound) {
			logger.Error("Processing task for missing meeting",
				zap.String("meeting_id", meetingID.String()))
			return fmt.Errorf("meeting %s not found: %w", meetingID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load meeting: %w", err)
	}

	if meeting.Status.IsTerminal() {
		// Redelivered task after a successful run, or the meeting was
		// cancelled out from under the transcript.
		logger.Info("Meeting in terminal state, skipping",
			zap.String("meeting_id", meetingID.String()),
			zap.String("status", string(meeting.Status)))
		return nil
	}

	transcriptURL := payload.TranscriptURL
	if transcriptURL == "" && meeting.TranscriptURL != nil {
		transcriptURL = *meeting.TranscriptURL
	}
	if transcriptURL == "" {
		return fmt.Errorf("no transcript url for meeting %s: %w", meetingID, asynq.SkipRetry)
	}

	raw, err := h.transcripts.FetchRaw(ctx, transcriptURL)
	if err != nil {
		return fmt.Errorf("failed to fetch transcript: %w", err)
	}

	items, err := transcript.Parse(raw)
	if err != nil {
		// Malformed data will not fix itself on retry.
		return fmt.Errorf("failed to parse transcript: %v: %w", err, asynq.SkipRetry)
	}

	speakers, err := h.transcripts.ResolveSpeakers(ctx, items)
	if err != nil {
		return fmt.Errorf("failed to resolve speakers: %w", err)
	}

	summary, err := h.summarizer.Summarize(ctx, transcript.PlainText(items, speakers))
	if err != nil {
		return fmt.Errorf("failed to summarize: %w", err)
	}

	if h.archive != nil {
		location, archiveErr := h.archive.Archive(ctx, meetingID, raw)
		if archiveErr != nil {
			logger.Warn("Transcript archive failed",
				zap.String("meeting_id", meetingID.String()),
				zap.Error(archiveErr))
		} else if err := h.meetings.SetRecordingURL(ctx, meetingID, location); err != nil {
			logger.Warn("Failed to record archive location",
				zap.String("meeting_id", meetingID.String()),
				zap.Error(err))
		}
	}

	applied, err := h.meetings.Complete(ctx, meetingID, summary)
	if err != nil {
		return fmt.Errorf("failed to complete meeting: %w", err)
	}

	if !applied {
		// The conditional write found the row outside processing. Either a
		// concurrent run already finished it, or the session-ended event has
		// not landed yet; re-read to tell the two apart.
		current, err := h.meetings.GetByID(ctx, meetingID)
		if err != nil {
			if errors.Is(err, postgres.ErrMeetingNotFound) {
				return fmt.Errorf("meeting %s disappeared: %w", meetingID, asynq.SkipRetry)
			}
			return fmt.Errorf("failed to re-check meeting: %w", err)
		}
		if current.Status.IsTerminal() {
			return nil
		}
		return fmt.Errorf("meeting %s not in processing yet (status %s), will retry", meetingID, current.Status)
	}

	logger.Info("Meeting completed",
		zap.String("meeting_id", meetingID.String()),
		zap.Int("transcript_items", len(items)),
		zap.Int("call_seconds", meeting.Duration()))

	if h.notifier != nil {
		if err := h.notifier.NotifySummaryReady(ctx, meeting.UserID, meetingID, meeting.Name); err != nil {
			logger.Warn("Summary-ready notification failed",
				zap.String("meeting_id", meetingID.String()),
				zap.Error(err))
		}
	}

	return nil
}

// NewServeMux wires the worker's task routes
func NewServeMux(completion *CompletionHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeMeetingProcessing, completion)
	return mux
}
