package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/repository/postgres"
	"meetassist-backend/pkg/logger"

	"go.uber.org/zap"
)

// AgentRepository defines agent persistence operations
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Agent, error)
	Update(ctx context.Context, agent *domain.Agent) (bool, error)
}

// Service handles agent management business logic
type Service struct {
	agentRepo AgentRepository
}

// NewService creates a new agent service
func NewService(agentRepo AgentRepository) *Service {
	return &Service{agentRepo: agentRepo}
}

// CreateInput contains new agent data
type CreateInput struct {
	Name         string
	Instructions string
	UserID       uuid.UUID
}

// Create inserts a new agent owned by the caller
func (s *Service) Create(ctx context.Context, input *CreateInput) (*domain.Agent, error) {
	now := time.Now()
	agent := &domain.Agent{
		AgentID:      uuid.New(),
		Name:         input.Name,
		Instructions: input.Instructions,
		UserID:       input.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.agentRepo.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	logger.Info("Agent created",
		zap.String("agent_id", agent.AgentID.String()),
		zap.String("user_id", agent.UserID.String()))

	return agent, nil
}

// Get retrieves an agent owned by the caller
func (s *Service) Get(ctx context.Context, agentID, userID uuid.UUID) (*domain.Agent, error) {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if agent.UserID != userID {
		// Someone else's agent looks the same as a missing one.
		return nil, postgres.ErrAgentNotFound
	}

	return agent, nil
}

// List retrieves the caller's agents, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Agent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.agentRepo.ListByUser(ctx, userID, limit, offset)
}

// UpdateInput contains the mutable agent fields
type UpdateInput struct {
	AgentID      uuid.UUID
	UserID       uuid.UUID
	Name         string
	Instructions string
}

// Update rewrites an agent's name and instructions. The write is scoped to
// the owner, so a miss means either an unknown agent or someone else's.
func (s *Service) Update(ctx context.Context, input *UpdateInput) (*domain.Agent, error) {
	applied, err := s.agentRepo.Update(ctx, &domain.Agent{
		AgentID:      input.AgentID,
		UserID:       input.UserID,
		Name:         input.Name,
		Instructions: input.Instructions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}

	if !applied {
		return nil, postgres.ErrAgentNotFound
	}

	return s.agentRepo.GetByID(ctx, input.AgentID)
}
