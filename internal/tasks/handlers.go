package tasks

import (
	"context"
	"encoding/json"

	"doable/internal/access"
	"doable/internal/services"
	"doable/internal/utils/logger"

	"github.com/hibiken/asynq"
)

// TaskHandler handles task processing with improved error handling and logging
type TaskHandler struct {
	logger  *logger.Logger
	storage *services.S3Service
	access  *access.Service
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(storage *services.S3Service, accessService *access.Service) *TaskHandler {
	return &TaskHandler{
		logger:  logger.New("task_handler"),
		storage: storage,
		access:  accessService,
	}
}

// HandleImageCleanup removes the stored image for a deleted item. A missing
// object is not an error; the task may be retried after a partial run.
func (h *TaskHandler) HandleImageCleanup(ctx context.Context, t *asynq.Task) error {
	var payload ImageCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return h.logger.Error("Failed to unmarshal image cleanup payload", err)
	}

	if payload.ImagePath == "" {
		h.logger.Warn("Image cleanup task with empty path, skipping")
		return nil
	}

	if err := h.storage.DeleteObject(ctx, payload.ImagePath); err != nil {
		return h.logger.Error("Failed to delete image object", err)
	}

	h.logger.Success("Cleaned up image %s", payload.ImagePath)
	return nil
}

// HandleReconcileAccess realigns permission records with their access
// requests, repairing any half-written approval state.
func (h *TaskHandler) HandleReconcileAccess(ctx context.Context, t *asynq.Task) error {
	if err := h.access.Reconcile(ctx); err != nil {
		return h.logger.Error("Access reconciliation failed", err)
	}
	return nil
}
