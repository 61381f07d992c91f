package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.OutboxRepository = (*outboxRepo)(nil)

type outboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *outboxRepo {
	return &outboxRepo{pool: pool}
}

func (r *outboxRepo) Append(ctx context.Context, ev *model.OutboxEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO outbox_events (idempotency_key, table_name, operation, primary_key, payload, retry_count, last_error, created_at)
VALUES ($1, $2, $3, $4, $5, 0, '', $6)
RETURNING id;`
	err := r.pool.QueryRow(ctx, q,
		ev.IdempotencyKey, ev.TableName, ev.Operation, ev.PrimaryKey, ev.Payload, ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *outboxRepo) ListUnapplied(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	const q = `
SELECT id, idempotency_key, table_name, operation, primary_key, payload, applied_at, retry_count, last_error, created_at
FROM outbox_events
WHERE applied_at IS NULL
ORDER BY id
LIMIT $1;`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OutboxEvent
	for rows.Next() {
		var ev model.OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.IdempotencyKey, &ev.TableName, &ev.Operation,
			&ev.PrimaryKey, &ev.Payload, &ev.AppliedAt, &ev.RetryCount, &ev.LastError, &ev.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (r *outboxRepo) MarkApplied(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox_events SET applied_at = $2 WHERE id = $1;`, id, at)
	return err
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id int64, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2 WHERE id = $1;`, id, lastError)
	return err
}
