package meeting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/provider/callprovider"
	"meetassist-backend/internal/provider/chatprovider"
	"meetassist-backend/internal/repository/postgres"
	"meetassist-backend/pkg/avatar"
	"meetassist-backend/pkg/logger"

	"go.uber.org/zap"
)

// MeetingRepository defines meeting persistence operations
type MeetingRepository interface {
	Create(ctx context.Context, meeting *domain.Meeting) error
	GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error)
	GetByIDForUser(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error)
	TransitionStatus(ctx context.Context, meetingID uuid.UUID, from, to domain.MeetingStatus, at time.Time) (bool, error)
	SetTranscriptURL(ctx context.Context, meetingID uuid.UUID, transcriptURL string) (bool, error)
	Delete(ctx context.Context, meetingID, userID uuid.UUID) (bool, error)
}

// AgentRepository defines agent lookups the meeting flow needs
type AgentRepository interface {
	GetByID(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error)
}

// UserRepository defines user lookups for token issuing
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// CallProvider provisions calls and issues call tokens
type CallProvider interface {
	ProvisionCall(ctx context.Context, meetingID uuid.UUID, meetingName string, createdByID uuid.UUID) error
	EndCall(ctx context.Context, meetingID uuid.UUID) error
	UpsertUser(ctx context.Context, user callprovider.User) error
	GenerateUserToken(userID string, validity time.Duration) (string, error)
}

// ChatProvider issues chat tokens and identities
type ChatProvider interface {
	UpsertUser(ctx context.Context, user chatprovider.User) error
	GenerateUserToken(userID string, validity time.Duration) (string, error)
}

// JobEnqueuer hands completed-call processing to the background worker
type JobEnqueuer interface {
	EnqueueMeetingProcessing(ctx context.Context, meetingID uuid.UUID, transcriptURL string) error
}

const providerTokenValidity = time.Hour

// Service handles meeting lifecycle business logic
type Service struct {
	meetingRepo  MeetingRepository
	agentRepo    AgentRepository
	userRepo     UserRepository
	callProvider CallProvider
	chatProvider ChatProvider
	enqueuer     JobEnqueuer
}

// NewService creates a new meeting service
func NewService(
	meetingRepo MeetingRepository,
	agentRepo AgentRepository,
	userRepo UserRepository,
	callProvider CallProvider,
	chatProvider ChatProvider,
	enqueuer JobEnqueuer,
) *Service {
	return &Service{
		meetingRepo:  meetingRepo,
		agentRepo:    agentRepo,
		userRepo:     userRepo,
		callProvider: callProvider,
		chatProvider: chatProvider,
		enqueuer:     enqueuer,
	}
}

// CreateInput contains new meeting data
type CreateInput struct {
	Name    string
	UserID  uuid.UUID
	AgentID uuid.UUID
}

// CreateOutput contains the created meeting
type CreateOutput struct {
	Meeting *domain.Meeting
}

// Create inserts a meeting in the upcoming state and provisions the provider
// call. The call id equals the meeting id; webhook events carry it back in
// call custom data.
func (s *Service) Create(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if _, err := s.agentRepo.GetByID(ctx, input.AgentID); err != nil {
		return nil, fmt.Errorf("failed to resolve agent: %w", err)
	}

	now := time.Now()
	meeting := &domain.Meeting{
		MeetingID: uuid.New(),
		Name:      input.Name,
		UserID:    input.UserID,
		AgentID:   input.AgentID,
		Status:    domain.MeetingStatusUpcoming,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.meetingRepo.Create(ctx, meeting); err != nil {
		return nil, fmt.Errorf("failed to create meeting: %w", err)
	}

	if err := s.callProvider.ProvisionCall(ctx, meeting.MeetingID, meeting.Name, meeting.UserID); err != nil {
		return nil, fmt.Errorf("failed to provision call: %w", err)
	}

	logger.Info("Meeting created",
		zap.String("meeting_id", meeting.MeetingID.String()),
		zap.String("user_id", meeting.UserID.String()),
		zap.String("agent_id", meeting.AgentID.String()))

	return &CreateOutput{Meeting: meeting}, nil
}

// Get retrieves a meeting owned by the caller
func (s *Service) Get(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error) {
	return s.meetingRepo.GetByIDForUser(ctx, meetingID, userID)
}

// List retrieves the caller's meetings, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.meetingRepo.ListByUser(ctx, userID, limit, offset)
}

// Cancel moves a meeting from upcoming to cancelled. Only meetings that have
// not started can be cancelled; anything else is reported as not applied.
func (s *Service) Cancel(ctx context.Context, meetingID, userID uuid.UUID) (bool, error) {
	if _, err := s.meetingRepo.GetByIDForUser(ctx, meetingID, userID); err != nil {
		return false, err
	}

	applied, err := s.meetingRepo.TransitionStatus(ctx, meetingID,
		domain.MeetingStatusUpcoming, domain.MeetingStatusCancelled, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to cancel meeting: %w", err)
	}

	if applied {
		// Best effort: the provisioned provider call should not stay joinable.
		if err := s.callProvider.EndCall(ctx, meetingID); err != nil {
			logger.Warn("Failed to end provider call for cancelled meeting",
				zap.String("meeting_id", meetingID.String()),
				zap.Error(err))
		}
		logger.Info("Meeting cancelled", zap.String("meeting_id", meetingID.String()))
	}

	return applied, nil
}

// Delete removes a meeting the caller owns, along with its stored recap data
func (s *Service) Delete(ctx context.Context, meetingID, userID uuid.UUID) error {
	deleted, err := s.meetingRepo.Delete(ctx, meetingID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete meeting: %w", err)
	}

	if !deleted {
		return postgres.ErrMeetingNotFound
	}

	logger.Info("Meeting deleted", zap.String("meeting_id", meetingID.String()))
	return nil
}

// HandleSessionStarted applies the call.session_started event: the meeting
// moves from upcoming to active and the start time is stamped. A redelivered
// or late event finds the row in another state and changes nothing.
func (s *Service) HandleSessionStarted(ctx context.Context, meetingID uuid.UUID) (bool, error) {
	applied, err := s.meetingRepo.TransitionStatus(ctx, meetingID,
		domain.MeetingStatusUpcoming, domain.MeetingStatusActive, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to apply session start: %w", err)
	}

	if !applied {
		logger.Debug("Session start not applied",
			zap.String("meeting_id", meetingID.String()))
	}

	return applied, nil
}

// HandleSessionEnded applies the call.session_ended event: active moves to
// processing and the end time is stamped.
func (s *Service) HandleSessionEnded(ctx context.Context, meetingID uuid.UUID) (bool, error) {
	applied, err := s.meetingRepo.TransitionStatus(ctx, meetingID,
		domain.MeetingStatusActive, domain.MeetingStatusProcessing, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to apply session end: %w", err)
	}

	if !applied {
		logger.Debug("Session end not applied",
			zap.String("meeting_id", meetingID.String()))
	}

	return applied, nil
}

// HandleTranscriptionReady persists the transcript location and enqueues the
// completion job. The URL write is unconditional data, not a transition, so a
// transcript arriving before the session-ended event is never lost; the job's
// own completed-transition guard sorts out ordering.
func (s *Service) HandleTranscriptionReady(ctx context.Context, meetingID uuid.UUID, transcriptURL string) error {
	found, err := s.meetingRepo.SetTranscriptURL(ctx, meetingID, transcriptURL)
	if err != nil {
		return fmt.Errorf("failed to persist transcript url: %w", err)
	}

	if !found {
		// Unknown meeting: silent no-op, same as every referential miss.
		logger.Warn("Transcript for unknown meeting",
			zap.String("meeting_id", meetingID.String()))
		return nil
	}

	if err := s.enqueuer.EnqueueMeetingProcessing(ctx, meetingID, transcriptURL); err != nil {
		return fmt.Errorf("failed to enqueue processing job: %w", err)
	}

	logger.Info("Processing job enqueued",
		zap.String("meeting_id", meetingID.String()))

	return nil
}

// TokenOutput carries a provider token for the caller
type TokenOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueVideoToken upserts the caller with the call provider and returns a
// short-lived call token
func (s *Service) IssueVideoToken(ctx context.Context, userID uuid.UUID) (*TokenOutput, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	image := ""
	if user.AvatarURL != nil {
		image = *user.AvatarURL
	}
	if image == "" {
		image = avatar.URI(user.Name, avatar.VariantInitials)
	}

	if err := s.callProvider.UpsertUser(ctx, callprovider.User{
		ID:    user.UserID.String(),
		Name:  user.Name,
		Image: image,
	}); err != nil {
		return nil, err
	}

	token, err := s.callProvider.GenerateUserToken(user.UserID.String(), providerTokenValidity)
	if err != nil {
		return nil, err
	}

	return &TokenOutput{
		Token:     token,
		ExpiresAt: time.Now().Add(providerTokenValidity),
	}, nil
}

// IssueChatToken upserts the caller with the chat provider and returns a
// short-lived chat token
func (s *Service) IssueChatToken(ctx context.Context, userID uuid.UUID) (*TokenOutput, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	image := ""
	if user.AvatarURL != nil {
		image = *user.AvatarURL
	}
	if image == "" {
		image = avatar.URI(user.Name, avatar.VariantInitials)
	}

	if err := s.chatProvider.UpsertUser(ctx, chatprovider.User{
		ID:    user.UserID.String(),
		Name:  user.Name,
		Image: image,
	}); err != nil {
		return nil, err
	}

	token, err := s.chatProvider.GenerateUserToken(user.UserID.String(), providerTokenValidity)
	if err != nil {
		return nil, err
	}

	return &TokenOutput{
		Token:     token,
		ExpiresAt: time.Now().Add(providerTokenValidity),
	}, nil
}
