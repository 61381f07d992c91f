package repository

import (
	"context"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain/model"
)

type PreviewRepository interface {
	// Save upserts the full record.
	Save(ctx context.Context, job *model.PreviewJob) error
	FindByID(ctx context.Context, id string) (*model.PreviewJob, error)
	ListByStatus(ctx context.Context, status model.PreviewStatus, limit int) ([]*model.PreviewJob, error)
	// MarkProcessing is the canonical Queued->Processing transition: it stamps
	// processing_started_at, increments retry_count and records the owning
	// worker/attempt. Fails with ErrNotFound if the job is not queued.
	MarkProcessing(ctx context.Context, jobID, workerID, attemptID string) (*model.PreviewJob, error)
	// UpdateCallback persists only the callback sub-state of a job.
	UpdateCallback(ctx context.Context, jobID string, cb model.CallbackState) error
	// ListCallbacksDue returns jobs whose callback is scheduled or retrying
	// and whose next_retry_after has elapsed.
	ListCallbacksDue(ctx context.Context, now time.Time, limit int) ([]*model.PreviewJob, error)
}

type JobRequestRepository interface {
	Save(ctx context.Context, req *model.JobRequest) error
	FindByID(ctx context.Context, requestID string) (*model.JobRequest, error)
}
