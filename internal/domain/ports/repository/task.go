package repository

import (
	"context"

	"github.com/tomshen124/ocr-server/internal/domain/model"
)

type TaskRepository interface {
	Save(ctx context.Context, task *model.TaskPayload) error
	FindByJobID(ctx context.Context, jobID string) (*model.TaskPayload, error)
	// Delete is called only once the job is terminal or abandoned.
	Delete(ctx context.Context, jobID string) error
}
