package cassandra

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"meetassist-backend/internal/domain"
)

// ChatMessageRepository mirrors post-call chat messages in Cassandra.
// Implements bucketing strategy for scalability
type ChatMessageRepository struct {
	session *gocql.Session
}

// NewChatMessageRepository creates a new ChatMessageRepository
func NewChatMessageRepository(session *gocql.Session) *ChatMessageRepository {
	return &ChatMessageRepository{session: session}
}

// Save inserts a new chat message into Cassandra
func (r *ChatMessageRepository) Save(message *domain.ChatMessage) error {
	// Calculate bucket if not already set
	if message.Bucket == 0 {
		message.Bucket = domain.CalculateBucket(message.CreatedAt)
	}

	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.New()
	}

	query := `
		INSERT INTO chat_messages (
			channel_id, bucket, message_id, sender_id, sender_name,
			text, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		message.ChannelID,
		message.Bucket,
		message.MessageID,
		message.SenderID,
		message.SenderName,
		message.Text,
		message.CreatedAt,
	).Exec()

	if err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}

	return nil
}

// GetByChannel retrieves messages for a channel within one month bucket,
// newest first
func (r *ChatMessageRepository) GetByChannel(channelID uuid.UUID, bucket int, limit int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT channel_id, bucket, message_id, sender_id, sender_name,
		       text, created_at
		FROM chat_messages
		WHERE channel_id = ? AND bucket = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	iter := r.session.Query(query, channelID, bucket, limit).Iter()

	var messages []*domain.ChatMessage

	for {
		message := &domain.ChatMessage{}
		if !iter.Scan(
			&message.ChannelID,
			&message.Bucket,
			&message.MessageID,
			&message.SenderID,
			&message.SenderName,
			&message.Text,
			&message.CreatedAt,
		) {
			break
		}
		messages = append(messages, message)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch chat messages: %w", err)
	}

	return messages, nil
}

// GetRecent returns the last messages in a channel in chronological order,
// oldest first, ready to drop into a model prompt. Checks the current month
// bucket first and reaches back one month when the window is not filled.
func (r *ChatMessageRepository) GetRecent(channelID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	now := time.Now()
	buckets := []int{
		domain.CalculateBucket(now),
		domain.CalculateBucket(now.AddDate(0, -1, 0)),
	}

	var collected []*domain.ChatMessage
	for _, bucket := range buckets {
		messages, err := r.GetByChannel(channelID, bucket, limit-len(collected))
		if err != nil {
			return nil, err
		}
		collected = append(collected, messages...)

		if len(collected) >= limit {
			break
		}
	}

	// Newest-first across buckets; reverse into prompt order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	return collected, nil
}
