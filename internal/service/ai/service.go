package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/provider/chatprovider"
	"meetassist-backend/internal/repository/postgres"
	"meetassist-backend/pkg/avatar"
	"meetassist-backend/pkg/logger"

	"go.uber.org/zap"
)

const historyWindow = 5

// MeetingRepository defines the meeting lookups the reply pipeline needs
type MeetingRepository interface {
	GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error)
}

// AgentRepository defines agent lookups
type AgentRepository interface {
	GetByID(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error)
}

// ChatHistory mirrors channel traffic and serves the recent window
type ChatHistory interface {
	Save(message *domain.ChatMessage) error
	GetRecent(channelID uuid.UUID, limit int) ([]*domain.ChatMessage, error)
}

// Generative produces model text for a prompt
type Generative interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// ChatProvider posts replies into the post-call channel
type ChatProvider interface {
	UpsertUser(ctx context.Context, user chatprovider.User) error
	SendMessage(ctx context.Context, channelID string, sender chatprovider.User, text string) error
}

// Service handles agent reply generation
type Service struct {
	meetingRepo  MeetingRepository
	agentRepo    AgentRepository
	history      ChatHistory
	generative   Generative
	chatProvider ChatProvider
}

// NewService creates a new AI reply service
func NewService(
	meetingRepo MeetingRepository,
	agentRepo AgentRepository,
	history ChatHistory,
	generative Generative,
	chatProvider ChatProvider,
) *Service {
	return &Service{
		meetingRepo:  meetingRepo,
		agentRepo:    agentRepo,
		history:      history,
		generative:   generative,
		chatProvider: chatProvider,
	}
}

// ChannelMessageInput is an incoming post-call chat message
type ChannelMessageInput struct {
	SenderID   string
	SenderName string
	ChannelID  uuid.UUID
	Text       string
}

// HandleChannelMessage runs the post-call reply pipeline for a channel
// message. The channel id doubles as the meeting id. Replies are only
// generated for completed meetings and never to the agent's own messages;
// every other case is a silent no-op. Returns true when a reply was posted.
func (s *Service) HandleChannelMessage(ctx context.Context, input *ChannelMessageInput) (bool, error) {
	meeting, err := s.meetingRepo.GetByID(ctx, input.ChannelID)
	if err != nil {
		if errors.Is(err, postgres.ErrMeetingNotFound) {
			// Unknown channel: nothing to do.
			logger.Debug("Chat message for unknown meeting",
				zap.String("channel_id", input.ChannelID.String()))
			return false, nil
		}
		return false, fmt.Errorf("failed to resolve meeting: %w", err)
	}

	if meeting.Status != domain.MeetingStatusCompleted {
		return false, nil
	}

	agent, err := s.agentRepo.GetByID(ctx, meeting.AgentID)
	if err != nil {
		logger.Warn("Agent missing for completed meeting",
			zap.String("meeting_id", meeting.MeetingID.String()),
			zap.String("agent_id", meeting.AgentID.String()))
		return false, nil
	}

	if input.SenderID == agent.AgentID.String() {
		// The agent's own reply echoing back; replying would loop forever.
		return false, nil
	}

	s.mirror(input.ChannelID, input.SenderID, input.SenderName, input.Text)

	prompt, err := s.buildPrompt(meeting, agent, input.Text)
	if err != nil {
		return false, err
	}

	reply, err := s.generative.GenerateContent(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("failed to generate reply: %w", err)
	}

	if reply == "" {
		// The model declined to answer; no outbound message.
		return false, nil
	}

	agentIdentity := chatprovider.User{
		ID:    agent.AgentID.String(),
		Name:  agent.Name,
		Image: avatar.URI(agent.Name, avatar.VariantBotttsNeutral),
	}

	if err := s.chatProvider.UpsertUser(ctx, agentIdentity); err != nil {
		return false, fmt.Errorf("failed to upsert agent identity: %w", err)
	}

	if err := s.chatProvider.SendMessage(ctx, input.ChannelID.String(), agentIdentity, reply); err != nil {
		return false, fmt.Errorf("failed to post reply: %w", err)
	}

	s.mirror(input.ChannelID, agentIdentity.ID, agent.Name, reply)

	logger.Info("Agent reply posted",
		zap.String("meeting_id", meeting.MeetingID.String()),
		zap.String("agent_id", agent.AgentID.String()))

	return true, nil
}

// buildPrompt assembles the reply prompt. The order is fixed: summary first,
// then the agent's instructions, then recent history oldest-first, then the
// question.
func (s *Service) buildPrompt(meeting *domain.Meeting, agent *domain.Agent, question string) (string, error) {
	summary := ""
	if meeting.Summary != nil {
		summary = *meeting.Summary
	}

	recent, err := s.history.GetRecent(meeting.MeetingID, historyWindow)
	if err != nil {
		return "", fmt.Errorf("failed to load chat history: %w", err)
	}

	var history strings.Builder
	for _, message := range recent {
		fmt.Fprintf(&history, "%s: %s\n", message.SenderName, message.Text)
	}

	prompt := fmt.Sprintf(`
Meeting summary:
%s

Agent instructions:
%s

Conversation history:
%s

User question:
%s
`, summary, agent.Instructions, strings.TrimRight(history.String(), "\n"), question)

	return prompt, nil
}

// mirror writes a message copy into the history store. History is advisory
// context for prompts; failures are logged and the pipeline moves on.
func (s *Service) mirror(channelID uuid.UUID, senderID, senderName, text string) {
	err := s.history.Save(&domain.ChatMessage{
		ChannelID:  channelID,
		MessageID:  uuid.New(),
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to mirror chat message",
			zap.String("channel_id", channelID.String()),
			zap.Error(err))
	}
}

// AskInput is a direct question to a meeting's agent
type AskInput struct {
	MeetingID   uuid.UUID
	MeetingName string
	Text        string
}

// Ask answers an in-call question against the meeting's agent. Used by the
// live call session; no chat delivery, the caller speaks the text itself.
func (s *Service) Ask(ctx context.Context, input *AskInput) (string, error) {
	meeting, err := s.meetingRepo.GetByID(ctx, input.MeetingID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve meeting: %w", err)
	}

	agent, err := s.agentRepo.GetByID(ctx, meeting.AgentID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve agent: %w", err)
	}

	name := input.MeetingName
	if name == "" {
		name = meeting.Name
	}

	prompt, err := s.buildPrompt(meeting, agent, input.Text)
	if err != nil {
		return "", err
	}
	prompt = fmt.Sprintf("Meeting name:\n%s\n%s", name, prompt)

	reply, err := s.generative.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	return reply, nil
}
