package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.JobRequestRepository = (*requestRepo)(nil)

type requestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *requestRepo {
	return &requestRepo{pool: pool}
}

func (r *requestRepo) Save(ctx context.Context, req *model.JobRequest) error {
	req.UpdatedAt = time.Now()
	const q = `
INSERT INTO job_requests (request_id, user_id, matter_id, latest_job_id, latest_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (request_id) DO UPDATE SET
  latest_job_id = EXCLUDED.latest_job_id,
  latest_status = EXCLUDED.latest_status,
  updated_at = EXCLUDED.updated_at;`
	_, err := r.pool.Exec(ctx, q,
		req.RequestID, req.UserID, req.MatterID, req.LatestJobID, string(req.LatestStatus),
		req.CreatedAt, req.UpdatedAt)
	return err
}

func (r *requestRepo) FindByID(ctx context.Context, requestID string) (*model.JobRequest, error) {
	const q = `
SELECT request_id, user_id, matter_id, latest_job_id, latest_status, created_at, updated_at
FROM job_requests WHERE request_id = $1;`
	var req model.JobRequest
	var statusStr string
	err := r.pool.QueryRow(ctx, q, requestID).Scan(
		&req.RequestID, &req.UserID, &req.MatterID, &req.LatestJobID, &statusStr,
		&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	req.LatestStatus = model.PreviewStatus(statusStr)
	return &req, nil
}
