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

var _ repository.TaskRepository = (*taskRepo)(nil)

type taskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *taskRepo {
	return &taskRepo{pool: pool}
}

func (r *taskRepo) Save(ctx context.Context, task *model.TaskPayload) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO task_payloads (job_id, payload, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (job_id) DO UPDATE SET payload = EXCLUDED.payload;`
	_, err := r.pool.Exec(ctx, q, task.JobID, task.Payload, task.CreatedAt)
	return err
}

func (r *taskRepo) FindByJobID(ctx context.Context, jobID string) (*model.TaskPayload, error) {
	const q = `SELECT job_id, payload, created_at FROM task_payloads WHERE job_id = $1;`
	var t model.TaskPayload
	err := r.pool.QueryRow(ctx, q, jobID).Scan(&t.JobID, &t.Payload, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &t, nil
}

func (r *taskRepo) Delete(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM task_payloads WHERE job_id = $1;`, jobID)
	return err
}
