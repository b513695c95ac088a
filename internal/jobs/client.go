package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"meetassist-backend/pkg/logger"

	"go.uber.org/zap"
)

// Client enqueues background tasks onto the redis-backed queue
type Client struct {
	client *asynq.Client
}

// NewClient creates a job client for the given redis address
func NewClient(redisAddr, redisPassword string, redisDB int) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDB,
		}),
	}
}

// EnqueueMeetingProcessing queues the completion job for a meeting. A job
// already pending for the same meeting makes this a no-op.
func (c *Client) EnqueueMeetingProcessing(ctx context.Context, meetingID uuid.UUID, transcriptURL string) error {
	task, err := NewMeetingProcessingTask(meetingID, transcriptURL)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logger.Debug("Processing job already queued",
				zap.String("meeting_id", meetingID.String()))
			return nil
		}
		return fmt.Errorf("failed to enqueue processing task: %w", err)
	}

	logger.Info("Processing task enqueued",
		zap.String("meeting_id", meetingID.String()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue))

	return nil
}

// Close releases the underlying queue connection
func (c *Client) Close() error {
	return c.client.Close()
}
