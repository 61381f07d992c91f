package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.ResultRepository = (*resultRepo)(nil)

type resultRepo struct {
	db *sql.DB
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

	const q = `
INSERT INTO worker_results (id, job_id, payload, status, attempts, last_error, created_at, updated_at)
VALUES (?, ?, ?, 'pending', 0, '', ?, ?)
ON CONFLICT (job_id) DO UPDATE SET
  payload = excluded.payload,
  status = 'pending',
  attempts = 0,
  last_error = '',
  updated_at = excluded.updated_at;`
	_, err := r.db.ExecContext(ctx, q, result.ID, result.JobID, result.Payload,
		toNanos(result.CreatedAt), toNanos(result.UpdatedAt))
	return err
}

func (r *resultRepo) FetchPending(ctx context.Context, limit int) ([]*model.WorkerResult, error) {
	const q = `
SELECT id, job_id, payload, status, attempts, last_error, created_at, updated_at
FROM worker_results WHERE status = 'pending' ORDER BY created_at LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WorkerResult
	for rows.Next() {
		var wr model.WorkerResult
		var statusStr string
		var createdAt, updatedAt int64
		if err := rows.Scan(&wr.ID, &wr.JobID, &wr.Payload, &statusStr, &wr.Attempts,
			&wr.LastError, &createdAt, &updatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		wr.Status = model.WorkerResultStatus(statusStr)
		wr.CreatedAt = fromNanos(createdAt)
		wr.UpdatedAt = fromNanos(updatedAt)
		out = append(out, &wr)
	}
	return out, rows.Err()
}

func (r *resultRepo) MarkDone(ctx context.Context, id string, status model.WorkerResultStatus, lastError string) error {
	const q = `
UPDATE worker_results SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE id = ?;`
	res, err := r.db.ExecContext(ctx, q, string(status), lastError, toNanos(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *resultRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM worker_results WHERE id = ?;`, id)
	return err
}
