package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.ResultRepository = (*resultRepo)(nil)

type resultRepo struct {
	pool *pgxpool.Pool
}

func NewResultRepo(pool *pgxpool.Pool) *resultRepo {
	return &resultRepo{pool: pool}
}

func (r *resultRepo) Enqueue(ctx context.Context, result *model.WorkerResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now()
	if result.CreatedAt.IsZero() {
		result.CreatedAt = now
	}
	result.UpdatedAt = now
	result.Status = model.WorkerResultPending

	// The unique constraint on job_id makes a second enqueue overwrite the
	// entry instead of duplicating it.
	const q = `
INSERT INTO worker_results (id, job_id, payload, status, attempts, last_error, created_at, updated_at)
VALUES ($1, $2, $3, 'pending', 0, '', $4, $5)
ON CONFLICT (job_id) DO UPDATE SET
  payload = EXCLUDED.payload,
  status = 'pending',
  attempts = 0,
  last_error = '',
  updated_at = EXCLUDED.updated_at;`
	_, err := r.pool.Exec(ctx, q, result.ID, result.JobID, result.Payload, result.CreatedAt, result.UpdatedAt)
	return err
}

func (r *resultRepo) FetchPending(ctx context.Context, limit int) ([]*model.WorkerResult, error) {
	const q = `
SELECT id, job_id, payload, status, attempts, last_error, created_at, updated_at
FROM worker_results
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1;`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WorkerResult
	for rows.Next() {
		var wr model.WorkerResult
		var statusStr string
		if err := rows.Scan(&wr.ID, &wr.JobID, &wr.Payload, &statusStr, &wr.Attempts,
			&wr.LastError, &wr.CreatedAt, &wr.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		wr.Status = model.WorkerResultStatus(statusStr)
		out = append(out, &wr)
	}
	return out, rows.Err()
}

func (r *resultRepo) MarkDone(ctx context.Context, id string, status model.WorkerResultStatus, lastError string) error {
	const q = `
UPDATE worker_results SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = $4
WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, id, string(status), lastError, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *resultRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM worker_results WHERE id = $1;`, id)
	return err
}
