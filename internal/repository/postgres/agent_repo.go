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

// ErrAgentNotFound is returned when an agent row does not exist
var ErrAgentNotFound = errors.New("agent not found")

// AgentRepository handles agent data operations
type AgentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

// Create inserts a new agent
func (r *AgentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (agent_id, name, instructions, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		agent.AgentID,
		agent.Name,
		agent.Instructions,
		agent.UserID,
		agent.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	return nil
}

// GetByID retrieves an agent by ID
func (r *AgentRepository) GetByID(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error) {
	query := `
		SELECT agent_id, name, instructions, user_id, created_at, updated_at
		FROM agents
		WHERE agent_id = $1
	`

	agent := &domain.Agent{}
	err := r.pool.QueryRow(ctx, query, agentID).Scan(
		&agent.AgentID,
		&agent.Name,
		&agent.Instructions,
		&agent.UserID,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	return agent, nil
}

// GetByIDs retrieves agents whose ids appear in the given set
func (r *AgentRepository) GetByIDs(ctx context.Context, agentIDs []uuid.UUID) ([]*domain.Agent, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT agent_id, name, instructions, user_id, created_at, updated_at
		FROM agents
		WHERE agent_id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, agentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get agents: %w", err)
	}
	defer rows.Close()

	var agents []*domain.Agent
	for rows.Next() {
		agent := &domain.Agent{}
		err := rows.Scan(
			&agent.AgentID,
			&agent.Name,
			&agent.Instructions,
			&agent.UserID,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}

	return agents, nil
}

// ListByUser retrieves a user's agents, newest first
func (r *AgentRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Agent, error) {
	query := `
		SELECT agent_id, name, instructions, user_id, created_at, updated_at
		FROM agents
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*domain.Agent
	for rows.Next() {
		agent := &domain.Agent{}
		err := rows.Scan(
			&agent.AgentID,
			&agent.Name,
			&agent.Instructions,
			&agent.UserID,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}

	return agents, nil
}

// Update rewrites an agent's mutable fields
func (r *AgentRepository) Update(ctx context.Context, agent *domain.Agent) (bool, error) {
	query := `
		UPDATE agents
		SET name = $3, instructions = $4, updated_at = $5
		WHERE agent_id = $1 AND user_id = $2
	`

	tag, err := r.pool.Exec(ctx, query,
		agent.AgentID,
		agent.UserID,
		agent.Name,
		agent.Instructions,
		time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update agent: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
