package repository

import (
	"context"

	"github.com/tomshen124/ocr-server/internal/domain/model"
)

type ResultRepository interface {
	// Enqueue inserts a pending entry, overwriting any pending entry already
	// queued for the same job id (at most one unprocessed entry per job).
	Enqueue(ctx context.Context, result *model.WorkerResult) error
	FetchPending(ctx context.Context, limit int) ([]*model.WorkerResult, error)
	// MarkDone finalizes an entry as completed or failed. Failed entries are
	// never re-queued automatically.
	MarkDone(ctx context.Context, id string, status model.WorkerResultStatus, lastError string) error
	Delete(ctx context.Context, id string) error
}
