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

var _ repository.TaskRepository = (*taskRepo)(nil)

type taskRepo struct {
	db *sql.DB
}

func (r *taskRepo) Save(ctx context.Context, task *model.TaskPayload) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO task_payloads (job_id, payload, created_at) VALUES (?, ?, ?)
ON CONFLICT (job_id) DO UPDATE SET payload = excluded.payload;`
	_, err := r.db.ExecContext(ctx, q, task.JobID, task.Payload, toNanos(task.CreatedAt))
	return err
}

func (r *taskRepo) FindByJobID(ctx context.Context, jobID string) (*model.TaskPayload, error) {
	const q = `SELECT job_id, payload, created_at FROM task_payloads WHERE job_id = ?;`
	var t model.TaskPayload
	var createdAt int64
	err := r.db.QueryRowContext(ctx, q, jobID).Scan(&t.JobID, &t.Payload, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	t.CreatedAt = fromNanos(createdAt)
	return &t, nil
}

func (r *taskRepo) Delete(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM task_payloads WHERE job_id = ?;`, jobID)
	return err
}
