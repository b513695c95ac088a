package domain

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a named, instruction-bearing AI persona assignable to meetings.
// The same record drives both the prompt (Instructions) and the chat-channel
// identity the agent posts under (Name + generated avatar).
type Agent struct {
	AgentID      uuid.UUID `json:"agent_id" db:"agent_id"`
	Name         string    `json:"name" db:"name"`
	Instructions string    `json:"instructions" db:"instructions"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AgentCreate represents data to create a new agent
type AgentCreate struct {
	Name         string `json:"name" binding:"required"`
	Instructions string `json:"instructions" binding:"required"`
}
