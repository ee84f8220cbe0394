package tasks

import (
	"context"
	"encoding/json"

	"doable/internal/utils/logger"

	"github.com/hibiken/asynq"
)

// TaskClient handles task enqueuing with improved error handling and context support
type TaskClient struct {
	client *asynq.Client
	logger *logger.Logger
}

func (c *TaskClient) GetClient() *asynq.Client {
	return c.client
}

// NewTaskClient creates a new TaskClient with the given Redis configuration
func NewTaskClient(redisAddr, username, password string, db int) *TaskClient {
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Username: username,
		Password: password,
		DB:       db,
	}

	return &TaskClient{
		client: asynq.NewClient(redisOpt),
		logger: logger.New("TASKS"),
	}
}

// EnqueueImageCleanup schedules removal of an image object whose item no
// longer exists. Runs on the low queue; the item delete has already
// succeeded by the time this is enqueued.
func (c *TaskClient) EnqueueImageCleanup(ctx context.Context, imagePath string) error {
	payload, err := json.Marshal(ImageCleanupPayload{ImagePath: imagePath})
	if err != nil {
		return c.logger.Error("Failed to marshal image cleanup payload", err)
	}

	task := asynq.NewTask(TaskTypeImageCleanup, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(RetryDefault),
		asynq.Timeout(TimeoutShort),
	)

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return c.logger.Error("Failed to enqueue image cleanup task", err)
	}

	c.logger.Debug("Enqueued image cleanup task %s for %s", info.ID, imagePath)
	return nil
}

// Close closes the underlying asynq client
func (c *TaskClient) Close() error {
	return c.client.Close()
}
