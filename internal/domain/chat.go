package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one mirrored post-call chat message.
// Maps to the Cassandra chat_messages table; the channel id equals the
// meeting id. Bucketed by month so a channel's history never grows into an
// unbounded partition.
type ChatMessage struct {
	ChannelID  uuid.UUID `json:"channel_id"`
	Bucket     int       `json:"bucket"`
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// CalculateBucket derives the month bucket for a message timestamp.
func CalculateBucket(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}
