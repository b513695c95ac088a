package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is reference data for meeting ownership, token issuing and read-time
// speaker resolution. Account management itself lives outside this service.
type User struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
