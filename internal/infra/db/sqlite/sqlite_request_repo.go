package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.JobRequestRepository = (*requestRepo)(nil)

type requestRepo struct {
	db *sql.DB
}

func (r *requestRepo) Save(ctx context.Context, req *model.JobRequest) error {
	req.UpdatedAt = time.Now()
	const q = `
INSERT INTO job_requests (request_id, user_id, matter_id, latest_job_id, latest_status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (request_id) DO UPDATE SET
  latest_job_id = excluded.latest_job_id,
  latest_status = excluded.latest_status,
  updated_at = excluded.updated_at;`
	_, err := r.db.ExecContext(ctx, q,
		req.RequestID, req.UserID, req.MatterID, req.LatestJobID, string(req.LatestStatus),
		toNanos(req.CreatedAt), toNanos(req.UpdatedAt))
	return err
}

func (r *requestRepo) FindByID(ctx context.Context, requestID string) (*model.JobRequest, error) {
	const q = `
SELECT request_id, user_id, matter_id, latest_job_id, latest_status, created_at, updated_at
FROM job_requests WHERE request_id = ?;`
	var req model.JobRequest
	var statusStr string
	var createdAt, updatedAt int64
	err := r.db.QueryRowContext(ctx, q, requestID).Scan(
		&req.RequestID, &req.UserID, &req.MatterID, &req.LatestJobID, &statusStr, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	req.LatestStatus = model.PreviewStatus(statusStr)
	req.CreatedAt = fromNanos(createdAt)
	req.UpdatedAt = fromNanos(updatedAt)
	return &req, nil
}
