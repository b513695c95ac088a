package agent

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meetassist-backend/internal/domain"
	"meetassist-backend/internal/repository/postgres"
	agentsvc "meetassist-backend/internal/service/agent"
	"meetassist-backend/pkg/response"
)

// AgentService drives agent management operations
type AgentService interface {
	Create(ctx context.Context, input *agentsvc.CreateInput) (*domain.Agent, error)
	Get(ctx context.Context, agentID, userID uuid.UUID) (*domain.Agent, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Agent, error)
	Update(ctx context.Context, input *agentsvc.UpdateInput) (*domain.Agent, error)
}

// Handler handles agent HTTP requests
type Handler struct {
	agentService AgentService
}

// NewHandler creates a new agent handler
func NewHandler(agentService AgentService) *Handler {
	return &Handler{agentService: agentService}
}

// CreateRequest represents agent creation
type CreateRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=200"`
	Instructions string `json:"instructions" binding:"required,min=1,max=4000"`
}

// Create registers a new agent for the caller
// POST /v1/agents
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	agent, err := h.agentService.Create(c.Request.Context(), &agentsvc.CreateInput{
		Name:         req.Name,
		Instructions: req.Instructions,
		UserID:       userID,
	})
	if err != nil {
		response.InternalError(c, "Failed to create agent")
		return
	}

	response.Success(c, http.StatusCreated, agent)
}

// Get returns an agent the caller owns
// GET /v1/agents/:id
func (h *Handler) Get(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid agent ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	agent, err := h.agentService.Get(c.Request.Context(), agentID, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrAgentNotFound) {
			response.NotFound(c, "Agent not found")
			return
		}
		response.InternalError(c, "Failed to get agent")
		return
	}

	response.Success(c, http.StatusOK, agent)
}

// List returns the caller's agents
// GET /v1/agents
func (h *Handler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	agents, err := h.agentService.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(c, "Failed to list agents")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"agents": agents,
		"limit":  limit,
		"offset": offset,
	})
}

// UpdateRequest represents an agent update
type UpdateRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=200"`
	Instructions string `json:"instructions" binding:"required,min=1,max=4000"`
}

// Update rewrites an agent's name and instructions
// PUT /v1/agents/:id
func (h *Handler) Update(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid agent ID")
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	agent, err := h.agentService.Update(c.Request.Context(), &agentsvc.UpdateInput{
		AgentID:      agentID,
		UserID:       userID,
		Name:         req.Name,
		Instructions: req.Instructions,
	})
	if err != nil {
		if errors.Is(err, postgres.ErrAgentNotFound) {
			response.NotFound(c, "Agent not found")
			return
		}
		response.InternalError(c, "Failed to update agent")
		return
	}

	response.Success(c, http.StatusOK, agent)
}

// currentUserID pulls the authenticated user id set by the auth middleware
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}

	return userID, true
}
