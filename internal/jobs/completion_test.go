package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/repository/postgres"
)

// Mocks
type MockMeetingStore struct {
	mock.Mock
}

func (m *MockMeetingStore) GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Meeting), args.Error(1)
}

func (m *MockMeetingStore) Complete(ctx context.Context, meetingID uuid.UUID, summary string) (bool, error) {
	args := m.Called(ctx, meetingID, summary)
	return args.Bool(0), args.Error(1)
}

func (m *MockMeetingStore) SetRecordingURL(ctx context.Context, meetingID uuid.UUID, recordingURL string) error {
	args := m.Called(ctx, meetingID, recordingURL)
	return args.Error(0)
}

type MockTranscriptFetcher struct {
	mock.Mock
}

func (m *MockTranscriptFetcher) FetchRaw(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockTranscriptFetcher) ResolveSpeakers(ctx context.Context, items []*domain.TranscriptItem) (map[string]domain.TranscriptSpeaker, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.TranscriptSpeaker), args.Error(1)
}

type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, transcriptText string) (string, error) {
	args := m.Called(ctx, transcriptText)
	return args.String(0), args.Error(1)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Archive(ctx context.Context, meetingID uuid.UUID, body []byte) (string, error) {
	args := m.Called(ctx, meetingID, body)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifySummaryReady(ctx context.Context, userID, meetingID uuid.UUID, meetingName string) error {
	args := m.Called(ctx, userID, meetingID, meetingName)
	return args.Error(0)
}

const rawTranscript = `{"speaker_id":"a","type":"speech","text":"hello","start_ts":0,"stop_ts":1}
{"speaker_id":"b","type":"speech","text":"hi there","start_ts":1,"stop_ts":2}
`

func processingMeeting(meetingID uuid.UUID, transcriptURL string) *domain.Meeting {
	return &domain.Meeting{
		MeetingID:     meetingID,
		Name:          "Weekly sync",
		UserID:        uuid.New(),
		Status:        domain.MeetingStatusProcessing,
		TranscriptURL: &transcriptURL,
	}
}

func newProcessingTask(t *testing.T, meetingID, transcriptURL string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(MeetingProcessingPayload{
		MeetingID:     meetingID,
		TranscriptURL: transcriptURL,
	})
	assert.NoError(t, err)
	return asynq.NewTask(TypeMeetingProcessing, payload)
}

func TestProcessTaskCompletes(t *testing.T) {
	meetings := new(MockMeetingStore)
	fetcher := new(MockTranscriptFetcher)
	summarizer := new(MockSummarizer)
	archiver := new(MockArchiver)
	notifier := new(MockNotifier)

	handler := NewCompletionHandler(meetings, fetcher, summarizer, archiver, notifier, nil)

	meetingID := uuid.New()
	transcriptURL := "https://t.example.com/x.jsonl"
	meeting := processingMeeting(meetingID, transcriptURL)

	// Expectations
	meetings.On("GetByID", mock.Anything, meetingID).Return(meeting, nil)
	fetcher.On("FetchRaw", mock.Anything, transcriptURL).Return([]byte(rawTranscript), nil)
	fetcher.On("ResolveSpeakers", mock.Anything, mock.Anything).Return(map[string]domain.TranscriptSpeaker{
		"a": {Name: "Ada"},
		"b": {Name: "Bob"},
	}, nil)
	summarizer.On("Summarize", mock.Anything, "Ada: hello\nBob: hi there\n").Return("### Overview\nGreetings.", nil)
	archiver.On("Archive", mock.Anything, meetingID, []byte(rawTranscript)).Return("s3://transcripts/x", nil)
	meetings.On("SetRecordingURL", mock.Anything, meetingID, "s3://transcripts/x").Return(nil)
	meetings.On("Complete", mock.Anything, meetingID, "### Overview\nGreetings.").Return(true, nil)
	notifier.On("NotifySummaryReady", mock.Anything, meeting.UserID, meetingID, "Weekly sync").Return(nil)

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), transcriptURL))

	// Assert
	assert.NoError(t, err)
	meetings.AssertExpectations(t)
	summarizer.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestProcessTaskMalformedPayloadIsTerminal(t *testing.T) {
	handler := NewCompletionHandler(new(MockMeetingStore), new(MockTranscriptFetcher), new(MockSummarizer), nil, nil, nil)

	task := asynq.NewTask(TypeMeetingProcessing, []byte(`{broken`))

	// Execute
	err := handler.ProcessTask(context.Background(), task)

	// Assert
	assert.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTaskInvalidMeetingIDIsTerminal(t *testing.T) {
	handler := NewCompletionHandler(new(MockMeetingStore), new(MockTranscriptFetcher), new(MockSummarizer), nil, nil, nil)

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, "not-a-uuid", ""))

	// Assert
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTaskMeetingNotFoundIsTerminal(t *testing.T) {
	meetings := new(MockMeetingStore)
	handler := NewCompletionHandler(meetings, new(MockTranscriptFetcher), new(MockSummarizer), nil, nil, nil)

	meetingID := uuid.New()

	// Expectations
	meetings.On("GetByID", mock.Anything, meetingID).Return(nil, postgres.ErrMeetingNotFound)

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), ""))

	// Assert
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTaskAlreadyCompletedIsNoop(t *testing.T) {
	meetings := new(MockMeetingStore)
	fetcher := new(MockTranscriptFetcher)
	handler := NewCompletionHandler(meetings, fetcher, new(MockSummarizer), nil, nil, nil)

	meetingID := uuid.New()
	summary := "done"

	// Expectations
	meetings.On("GetByID", mock.Anything, meetingID).Return(&domain.Meeting{
		MeetingID: meetingID,
		Status:    domain.MeetingStatusCompleted,
		Summary:   &summary,
	}, nil)

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), "https://t.example.com/x.jsonl"))

	// Assert: redelivered task after a successful run changes nothing.
	assert.NoError(t, err)
	fetcher.AssertNotCalled(t, "FetchRaw", mock.Anything, mock.Anything)
	meetings.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessTaskNoTranscriptURLIsTerminal(t *testing.T) {
	meetings := new(MockMeetingStore)
	handler := NewCompletionHandler(meetings, new(MockTranscriptFetcher), new(MockSummarizer), nil, nil, nil)

	meetingID := uuid.New()

	// Row has no transcript either.
	meetings.On("GetByID", mock.Anything, meetingID).Return(&domain.Meeting{
		MeetingID: meetingID,
		Status:    domain.MeetingStatusProcessing,
	}, nil)

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), ""))

	// Assert
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTaskFetchFailureRetries(t *testing.T) {
	meetings := new(MockMeetingStore)
	fetcher := new(MockTranscriptFetcher)
	handler := NewCompletionHandler(meetings, fetcher, new(MockSummarizer), nil, nil, nil)

	meetingID := uuid.New()
	transcriptURL := "https://t.example.com/x.jsonl"

	// Expectations
	meetings.On("GetByID", mock.Anything, meetingID).Return(processingMeeting(meetingID, transcriptURL), nil)
	fetcher.On("FetchRaw", mock.Anything, transcriptURL).Return(nil, errors.New("upstream timeout"))

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), transcriptURL))

	// Assert: transient fetch failures stay retryable.
	assert.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTaskMalformedTranscriptIsTerminal(t *testing.T) {
	meetings := new(MockMeetingStore)
	fetcher := new(MockTranscriptFetcher)
	handler := NewCompletionHandler(meetings, fetcher, new(MockSummarizer), nil, nil, nil)

	meetingID := uuid.New()
	transcriptURL := "https://t.example.com/x.jsonl"

	// Expectations
	meetings.On("GetByID", mock.Anything, meetingID).Return(processingMeeting(meetingID, transcriptURL), nil)
	fetcher.On("FetchRaw", mock.Anything, transcriptURL).Return([]byte("{not json}\n"), nil)

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), transcriptURL))

	// Assert
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTaskCompleteRaceAlreadyDone(t *testing.T) {
	meetings := new(MockMeetingStore)
	fetcher := new(MockTranscriptFetcher)
	summarizer := new(MockSummarizer)
	handler := NewCompletionHandler(meetings, fetcher, summarizer, nil, nil, nil)

	meetingID := uuid.New()
	transcriptURL := "https://t.example.com/x.jsonl"
	summary := "### Overview\nGreetings."

	// The conditional write loses to a concurrent run; the re-read finds the
	// row completed and the task succeeds quietly.
	meetings.On("GetByID", mock.Anything, meetingID).Return(processingMeeting(meetingID, transcriptURL), nil).Once()
	fetcher.On("FetchRaw", mock.Anything, transcriptURL).Return([]byte(rawTranscript), nil)
	fetcher.On("ResolveSpeakers", mock.Anything, mock.Anything).Return(map[string]domain.TranscriptSpeaker{}, nil)
	summarizer.On("Summarize", mock.Anything, mock.Anything).Return(summary, nil)
	meetings.On("Complete", mock.Anything, meetingID, summary).Return(false, nil)
	meetings.On("GetByID", mock.Anything, meetingID).Return(&domain.Meeting{
		MeetingID: meetingID,
		Status:    domain.MeetingStatusCompleted,
	}, nil).Once()

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), transcriptURL))

	// Assert
	assert.NoError(t, err)
	meetings.AssertExpectations(t)
}

func TestProcessTaskCompleteBeforeSessionEndedRetries(t *testing.T) {
	meetings := new(MockMeetingStore)
	fetcher := new(MockTranscriptFetcher)
	summarizer := new(MockSummarizer)
	handler := NewCompletionHandler(meetings, fetcher, summarizer, nil, nil, nil)

	meetingID := uuid.New()
	transcriptURL := "https://t.example.com/x.jsonl"

	// Transcript landed before the session-ended event; the row still sits in
	// active, so the job backs off and retries.
	activeMeeting := processingMeeting(meetingID, transcriptURL)
	activeMeeting.Status = domain.MeetingStatusActive

	meetings.On("GetByID", mock.Anything, meetingID).Return(activeMeeting, nil)
	fetcher.On("FetchRaw", mock.Anything, transcriptURL).Return([]byte(rawTranscript), nil)
	fetcher.On("ResolveSpeakers", mock.Anything, mock.Anything).Return(map[string]domain.TranscriptSpeaker{}, nil)
	summarizer.On("Summarize", mock.Anything, mock.Anything).Return("summary", nil)
	meetings.On("Complete", mock.Anything, meetingID, "summary").Return(false, nil)

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), transcriptURL))

	// Assert
	assert.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTaskArchiveFailureIsNonFatal(t *testing.T) {
	meetings := new(MockMeetingStore)
	fetcher := new(MockTranscriptFetcher)
	summarizer := new(MockSummarizer)
	archiver := new(MockArchiver)
	handler := NewCompletionHandler(meetings, fetcher, summarizer, archiver, nil, nil)

	meetingID := uuid.New()
	transcriptURL := "https://t.example.com/x.jsonl"

	// Expectations
	meetings.On("GetByID", mock.Anything, meetingID).Return(processingMeeting(meetingID, transcriptURL), nil)
	fetcher.On("FetchRaw", mock.Anything, transcriptURL).Return([]byte(rawTranscript), nil)
	fetcher.On("ResolveSpeakers", mock.Anything, mock.Anything).Return(map[string]domain.TranscriptSpeaker{}, nil)
	summarizer.On("Summarize", mock.Anything, mock.Anything).Return("summary", nil)
	archiver.On("Archive", mock.Anything, meetingID, mock.Anything).Return("", errors.New("bucket unavailable"))
	meetings.On("Complete", mock.Anything, meetingID, "summary").Return(true, nil)

	// Execute
	err := handler.ProcessTask(context.Background(), newProcessingTask(t, meetingID.String(), transcriptURL))

	// Assert: the meeting still completes when archiving fails.
	assert.NoError(t, err)
	meetings.AssertNotCalled(t, "SetRecordingURL", mock.Anything, mock.Anything, mock.Anything)
	meetings.AssertExpectations(t)
}
