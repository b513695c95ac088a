package meeting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/provider/callprovider"
	"meetassist-backend/internal/provider/chatprovider"
	"meetassist-backend/internal/repository/postgres"
)

// Mocks
type MockMeetingRepository struct {
	mock.Mock
}

func (m *MockMeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	args := m.Called(ctx, meeting)
	return args.Error(0)
}

func (m *MockMeetingRepository) GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) GetByIDForUser(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error) {
	args := m.Called(ctx, meetingID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*domain.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) TransitionStatus(ctx context.Context, meetingID uuid.UUID, from, to domain.MeetingStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, meetingID, from, to, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockMeetingRepository) SetTranscriptURL(ctx context.Context, meetingID uuid.UUID, transcriptURL string) (bool, error) {
	args := m.Called(ctx, meetingID, transcriptURL)
	return args.Bool(0), args.Error(1)
}

func (m *MockMeetingRepository) Delete(ctx context.Context, meetingID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, meetingID, userID)
	return args.Bool(0), args.Error(1)
}

type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) GetByID(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agent), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockCallProvider struct {
	mock.Mock
}

func (m *MockCallProvider) ProvisionCall(ctx context.Context, meetingID uuid.UUID, meetingName string, createdByID uuid.UUID) error {
	args := m.Called(ctx, meetingID, meetingName, createdByID)
	return args.Error(0)
}

func (m *MockCallProvider) EndCall(ctx context.Context, meetingID uuid.UUID) error {
	args := m.Called(ctx, meetingID)
	return args.Error(0)
}

func (m *MockCallProvider) UpsertUser(ctx context.Context, user callprovider.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockCallProvider) GenerateUserToken(userID string, validity time.Duration) (string, error) {
	args := m.Called(userID, validity)
	return args.String(0), args.Error(1)
}

type MockChatProvider struct {
	mock.Mock
}

func (m *MockChatProvider) UpsertUser(ctx context.Context, user chatprovider.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockChatProvider) GenerateUserToken(userID string, validity time.Duration) (string, error) {
	args := m.Called(userID, validity)
	return args.String(0), args.Error(1)
}

type MockJobEnqueuer struct {
	mock.Mock
}

func (m *MockJobEnqueuer) EnqueueMeetingProcessing(ctx context.Context, meetingID uuid.UUID, transcriptURL string) error {
	args := m.Called(ctx, meetingID, transcriptURL)
	return args.Error(0)
}

func newTestService() (*Service, *MockMeetingRepository, *MockAgentRepository, *MockUserRepository, *MockCallProvider, *MockChatProvider, *MockJobEnqueuer) {
	meetingRepo := new(MockMeetingRepository)
	agentRepo := new(MockAgentRepository)
	userRepo := new(MockUserRepository)
	callProvider := new(MockCallProvider)
	chatProvider := new(MockChatProvider)
	enqueuer := new(MockJobEnqueuer)
	service := NewService(meetingRepo, agentRepo, userRepo, callProvider, chatProvider, enqueuer)
	return service, meetingRepo, agentRepo, userRepo, callProvider, chatProvider, enqueuer
}

func TestCreateMeeting(t *testing.T) {
	service, meetingRepo, agentRepo, _, callProvider, _, _ := newTestService()

	userID := uuid.New()
	agentID := uuid.New()
	ctx := context.Background()

	// Expectations
	agentRepo.On("GetByID", ctx, agentID).Return(&domain.Agent{
		AgentID: agentID,
		Name:    "Notetaker",
		UserID:  userID,
	}, nil)
	meetingRepo.On("Create", ctx, mock.AnythingOfType("*domain.Meeting")).Return(nil)
	callProvider.On("ProvisionCall", ctx, mock.AnythingOfType("uuid.UUID"), "Weekly sync", userID).Return(nil)

	// Execute
	output, err := service.Create(ctx, &CreateInput{
		Name:    "Weekly sync",
		UserID:  userID,
		AgentID: agentID,
	})

	// Assert
	assert.NoError(t, err)
	assert.NotNil(t, output)
	assert.Equal(t, domain.MeetingStatusUpcoming, output.Meeting.Status)
	assert.Equal(t, userID, output.Meeting.UserID)
	assert.NotEqual(t, uuid.Nil, output.Meeting.MeetingID)

	meetingRepo.AssertExpectations(t)
	callProvider.AssertExpectations(t)
}

func TestCreateMeetingUnknownAgent(t *testing.T) {
	service, meetingRepo, agentRepo, _, callProvider, _, _ := newTestService()

	ctx := context.Background()
	agentID := uuid.New()

	// Expectations
	agentRepo.On("GetByID", ctx, agentID).Return(nil, postgres.ErrAgentNotFound)

	// Execute
	output, err := service.Create(ctx, &CreateInput{
		Name:    "Weekly sync",
		UserID:  uuid.New(),
		AgentID: agentID,
	})

	// Assert
	assert.Error(t, err)
	assert.True(t, errors.Is(err, postgres.ErrAgentNotFound))
	assert.Nil(t, output)
	meetingRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	callProvider.AssertNotCalled(t, "ProvisionCall", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteMeeting(t *testing.T) {
	service, meetingRepo, _, _, _, _, _ := newTestService()

	ctx := context.Background()
	meetingID := uuid.New()
	userID := uuid.New()

	// Expectations
	meetingRepo.On("Delete", ctx, meetingID, userID).Return(true, nil)

	// Execute
	err := service.Delete(ctx, meetingID, userID)

	// Assert
	assert.NoError(t, err)
	meetingRepo.AssertExpectations(t)
}

func TestDeleteMeetingNotOwned(t *testing.T) {
	service, meetingRepo, _, _, _, _, _ := newTestService()

	ctx := context.Background()

	// The owner-scoped delete touches no rows.
	meetingRepo.On("Delete", ctx, mock.Anything, mock.Anything).Return(false, nil)

	// Execute
	err := service.Delete(ctx, uuid.New(), uuid.New())

	// Assert
	assert.ErrorIs(t, err, postgres.ErrMeetingNotFound)
}

func TestCancelMeeting(t *testing.T) {
	service, meetingRepo, _, _, callProvider, _, _ := newTestService()

	ctx := context.Background()
	meetingID := uuid.New()
	userID := uuid.New()

	// Expectations
	meetingRepo.On("GetByIDForUser", ctx, meetingID, userID).Return(&domain.Meeting{
		MeetingID: meetingID,
		UserID:    userID,
		Status:    domain.MeetingStatusUpcoming,
	}, nil)
	meetingRepo.On("TransitionStatus", ctx, meetingID,
		domain.MeetingStatusUpcoming, domain.MeetingStatusCancelled, mock.AnythingOfType("time.Time")).Return(true, nil)
	callProvider.On("EndCall", ctx, meetingID).Return(nil)

	// Execute
	applied, err := service.Cancel(ctx, meetingID, userID)

	// Assert
	assert.NoError(t, err)
	assert.True(t, applied)
	meetingRepo.AssertExpectations(t)
	callProvider.AssertExpectations(t)
}

func TestCancelMeetingAlreadyStarted(t *testing.T) {
	service, meetingRepo, _, _, _, _, _ := newTestService()

	ctx := context.Background()
	meetingID := uuid.New()
	userID := uuid.New()

	// The row exists but sits in active; the conditional update matches nothing.
	meetingRepo.On("GetByIDForUser", ctx, meetingID, userID).Return(&domain.Meeting{
		MeetingID: meetingID,
		UserID:    userID,
		Status:    domain.MeetingStatusActive,
	}, nil)
	meetingRepo.On("TransitionStatus", ctx, meetingID,
		domain.MeetingStatusUpcoming, domain.MeetingStatusCancelled, mock.AnythingOfType("time.Time")).Return(false, nil)

	// Execute
	applied, err := service.Cancel(ctx, meetingID, userID)

	// Assert
	assert.NoError(t, err)
	assert.False(t, applied)
}

func TestHandleSessionStarted(t *testing.T) {
	service, meetingRepo, _, _, _, _, _ := newTestService()

	ctx := context.Background()
	meetingID := uuid.New()

	// Expectations
	meetingRepo.On("TransitionStatus", ctx, meetingID,
		domain.MeetingStatusUpcoming, domain.MeetingStatusActive, mock.AnythingOfType("time.Time")).Return(true, nil)

	// Execute
	applied, err := service.HandleSessionStarted(ctx, meetingID)

	// Assert
	assert.NoError(t, err)
	assert.True(t, applied)
	meetingRepo.AssertExpectations(t)
}

func TestHandleSessionStartedRedelivered(t *testing.T) {
	service, meetingRepo, _, _, _, _, _ := newTestService()

	ctx := context.Background()
	meetingID := uuid.New()

	// Second delivery finds the row already active: no match, no error.
	meetingRepo.On("TransitionStatus", ctx, meetingID,
		domain.MeetingStatusUpcoming, domain.MeetingStatusActive, mock.AnythingOfType("time.Time")).Return(false, nil)

	// Execute
	applied, err := service.HandleSessionStarted(ctx, meetingID)

	// Assert
	assert.NoError(t, err)
	assert.False(t, applied)
}

func TestHandleSessionEnded(t *testing.T) {
	service, meetingRepo, _, _, _, _, _ := newTestService()

	ctx := context.Background()
	meetingID := uuid.New()

	// Expectations
	meetingRepo.On("TransitionStatus", ctx, meetingID,
		domain.MeetingStatusActive, domain.MeetingStatusProcessing, mock.AnythingOfType("time.Time")).Return(true, nil)

	// Execute
	applied, err := service.HandleSessionEnded(ctx, meetingID)

	// Assert
	assert.NoError(t, err)
	assert.True(t, applied)
	meetingRepo.AssertExpectations(t)
}

func TestHandleTranscriptionReady(t *testing.T) {
	service, meetingRepo, _, _, _, _, enqueuer := newTestService()

	ctx := context.Background()
	meetingID := uuid.New()
	transcriptURL := "https://transcripts.example.com/abc.jsonl"

	// Expectations
	meetingRepo.On("SetTranscriptURL", ctx, meetingID, transcriptURL).Return(true, nil)
	enqueuer.On("EnqueueMeetingProcessing", ctx, meetingID, transcriptURL).Return(nil)

	// Execute
	err := service.HandleTranscriptionReady(ctx, meetingID, transcriptURL)

	// Assert
	assert.NoError(t, err)
	meetingRepo.AssertExpectations(t)
	enqueuer.AssertExpectations(t)
}

func TestHandleTranscriptionReadyUnknownMeeting(t *testing.T) {
	service, meetingRepo, _, _, _, _, enqueuer := newTestService()

	ctx := context.Background()
	meetingID := uuid.New()

	// Unknown meeting is a silent no-op; nothing gets enqueued.
	meetingRepo.On("SetTranscriptURL", ctx, meetingID, "https://transcripts.example.com/abc.jsonl").Return(false, nil)

	// Execute
	err := service.HandleTranscriptionReady(ctx, meetingID, "https://transcripts.example.com/abc.jsonl")

	// Assert
	assert.NoError(t, err)
	enqueuer.AssertNotCalled(t, "EnqueueMeetingProcessing", mock.Anything, mock.Anything, mock.Anything)
}

func TestListClampsLimit(t *testing.T) {
	service, meetingRepo, _, _, _, _, _ := newTestService()

	ctx := context.Background()
	userID := uuid.New()

	// Expectations
	meetingRepo.On("ListByUser", ctx, userID, 20, 0).Return([]*domain.Meeting{}, nil)

	// Execute
	_, err := service.List(ctx, userID, 5000, -3)

	// Assert
	assert.NoError(t, err)
	meetingRepo.AssertExpectations(t)
}

func TestIssueVideoToken(t *testing.T) {
	service, _, _, userRepo, callProvider, _, _ := newTestService()

	ctx := context.Background()
	userID := uuid.New()

	// Expectations
	userRepo.On("GetByID", ctx, userID).Return(&domain.User{
		UserID: userID,
		Name:   "Ada",
		Email:  "ada@example.com",
	}, nil)
	callProvider.On("UpsertUser", ctx, mock.MatchedBy(func(u callprovider.User) bool {
		return u.ID == userID.String() && u.Name == "Ada" && u.Image != ""
	})).Return(nil)
	callProvider.On("GenerateUserToken", userID.String(), time.Hour).Return("signed-token", nil)

	// Execute
	output, err := service.IssueVideoToken(ctx, userID)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "signed-token", output.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), output.ExpiresAt, 5*time.Second)
	callProvider.AssertExpectations(t)
}

func TestIssueChatToken(t *testing.T) {
	service, _, _, userRepo, _, chatProvider, _ := newTestService()

	ctx := context.Background()
	userID := uuid.New()
	avatarURL := "https://cdn.example.com/ada.png"

	// Expectations
	userRepo.On("GetByID", ctx, userID).Return(&domain.User{
		UserID:    userID,
		Name:      "Ada",
		Email:     "ada@example.com",
		AvatarURL: &avatarURL,
	}, nil)
	chatProvider.On("UpsertUser", ctx, chatprovider.User{
		ID:    userID.String(),
		Name:  "Ada",
		Image: avatarURL,
	}).Return(nil)
	chatProvider.On("GenerateUserToken", userID.String(), time.Hour).Return("chat-token", nil)

	// Execute
	output, err := service.IssueChatToken(ctx, userID)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "chat-token", output.Token)
	chatProvider.AssertExpectations(t)
}
