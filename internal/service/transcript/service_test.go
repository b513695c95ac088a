package transcript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"meetassist-backend/internal/domain"
)

// Mocks
type MockMeetingRepository struct {
	mock.Mock
}

func (m *MockMeetingRepository) GetByIDForUser(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error) {
	args := m.Called(ctx, meetingID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Meeting), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.User, error) {
	args := m.Called(ctx, userIDs)
	return args.Get(0).([]*domain.User), args.Error(1)
}

type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) GetByIDs(ctx context.Context, agentIDs []uuid.UUID) ([]*domain.Agent, error) {
	args := m.Called(ctx, agentIDs)
	return args.Get(0).([]*domain.Agent), args.Error(1)
}

type MockArchiveFetcher struct {
	mock.Mock
}

func (m *MockArchiveFetcher) Fetch(ctx context.Context, meetingID uuid.UUID) ([]byte, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func TestParse(t *testing.T) {
	raw := []byte(`{"speaker_id":"a","type":"speech","text":"hello","start_ts":0.5,"stop_ts":1.2}

{"speaker_id":"b","type":"speech","text":"hi","start_ts":1.5,"stop_ts":2.0}
`)

	// Execute
	items, err := Parse(raw)

	// Assert: blank lines are skipped, order preserved.
	assert.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "a", items[0].SpeakerID)
	assert.Equal(t, "hello", items[0].Text)
	assert.Equal(t, 0.5, items[0].StartTS)
	assert.Equal(t, "b", items[1].SpeakerID)
}

func TestParseEmpty(t *testing.T) {
	items, err := Parse([]byte(""))
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseMalformedLineFails(t *testing.T) {
	raw := []byte(`{"speaker_id":"a","text":"hello"}
{oops}
`)

	// Execute
	items, err := Parse(raw)

	// Assert: a malformed line fails the whole parse.
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Nil(t, items)
}

func TestPlainText(t *testing.T) {
	items := []*domain.TranscriptItem{
		{SpeakerID: "a", Text: "hello"},
		{SpeakerID: "ghost", Text: "boo"},
	}
	speakers := map[string]domain.TranscriptSpeaker{
		"a": {Name: "Ada"},
	}

	// Execute
	text := PlainText(items, speakers)

	// Assert: unresolved speakers fall back to Unknown.
	assert.Equal(t, "Ada: hello\nUnknown: boo\n", text)
}

func TestResolveSpeakers(t *testing.T) {
	meetingRepo := new(MockMeetingRepository)
	userRepo := new(MockUserRepository)
	agentRepo := new(MockAgentRepository)
	service := NewService(meetingRepo, userRepo, agentRepo, nil)

	ctx := context.Background()
	userID := uuid.New()
	agentID := uuid.New()

	items := []*domain.TranscriptItem{
		{SpeakerID: userID.String(), Text: "hello"},
		{SpeakerID: userID.String(), Text: "again"},
		{SpeakerID: agentID.String(), Text: "hi"},
		{SpeakerID: "not-a-uuid", Text: "static"},
	}

	// Expectations: users are checked first, leftovers go to agents.
	userRepo.On("GetByIDs", ctx, []uuid.UUID{userID, agentID}).Return([]*domain.User{
		{UserID: userID, Name: "Ada"},
	}, nil)
	agentRepo.On("GetByIDs", ctx, []uuid.UUID{agentID}).Return([]*domain.Agent{
		{AgentID: agentID, Name: "Notetaker"},
	}, nil)

	// Execute
	speakers, err := service.ResolveSpeakers(ctx, items)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, speakers, 2)
	assert.Equal(t, "Ada", speakers[userID.String()].Name)
	assert.Equal(t, "Notetaker", speakers[agentID.String()].Name)
	assert.NotEmpty(t, speakers[agentID.String()].Image)
	_, resolved := speakers["not-a-uuid"]
	assert.False(t, resolved)
	userRepo.AssertExpectations(t)
	agentRepo.AssertExpectations(t)
}

func TestResolveSpeakersNoIDs(t *testing.T) {
	service := NewService(new(MockMeetingRepository), new(MockUserRepository), new(MockAgentRepository), nil)

	// Execute: only non-uuid speaker ids, no lookups at all.
	speakers, err := service.ResolveSpeakers(context.Background(), []*domain.TranscriptItem{
		{SpeakerID: "raw-id", Text: "x"},
	})

	// Assert
	assert.NoError(t, err)
	assert.Empty(t, speakers)
}

func TestGetForMeetingFallsBackToArchive(t *testing.T) {
	// Expired provider URL: the store answers 404 and the archive copy wins.
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer store.Close()

	meetingRepo := new(MockMeetingRepository)
	archive := new(MockArchiveFetcher)
	service := NewService(meetingRepo, new(MockUserRepository), new(MockAgentRepository), archive)

	ctx := context.Background()
	meetingID := uuid.New()
	userID := uuid.New()
	transcriptURL := store.URL + "/transcript.jsonl"

	// Expectations
	meetingRepo.On("GetByIDForUser", ctx, meetingID, userID).Return(&domain.Meeting{
		MeetingID:     meetingID,
		UserID:        userID,
		Status:        domain.MeetingStatusCompleted,
		TranscriptURL: &transcriptURL,
	}, nil)
	archive.On("Fetch", ctx, meetingID).Return(
		[]byte(`{"speaker_id":"narrator","text":"hello"}`+"\n"), nil)

	// Execute
	entries, err := service.GetForMeeting(ctx, meetingID, userID)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Text)
	archive.AssertExpectations(t)
}

func TestGetForMeetingNoTranscriptYet(t *testing.T) {
	meetingRepo := new(MockMeetingRepository)
	service := NewService(meetingRepo, new(MockUserRepository), new(MockAgentRepository), nil)

	ctx := context.Background()
	meetingID := uuid.New()
	userID := uuid.New()

	// Expectations
	meetingRepo.On("GetByIDForUser", ctx, meetingID, userID).Return(&domain.Meeting{
		MeetingID: meetingID,
		UserID:    userID,
		Status:    domain.MeetingStatusProcessing,
	}, nil)

	// Execute
	entries, err := service.GetForMeeting(ctx, meetingID, userID)

	// Assert: no transcript URL yet means an empty transcript, not an error.
	assert.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
