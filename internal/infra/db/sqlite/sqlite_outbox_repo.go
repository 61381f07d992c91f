package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.OutboxRepository = (*outboxRepo)(nil)

type outboxRepo struct {
	db *sql.DB
}

func (r *outboxRepo) Append(ctx context.Context, ev *model.OutboxEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO outbox_events (idempotency_key, table_name, operation, primary_key, payload, applied_at, retry_count, last_error, created_at)
VALUES (?, ?, ?, ?, ?, 0, 0, '', ?)
RETURNING id;`
	err := r.db.QueryRowContext(ctx, q,
		ev.IdempotencyKey, ev.TableName, ev.Operation, ev.PrimaryKey, ev.Payload, toNanos(ev.CreatedAt),
	).Scan(&ev.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *outboxRepo) ListUnapplied(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	const q = `
SELECT id, idempotency_key, table_name, operation, primary_key, payload, applied_at, retry_count, last_error, created_at
FROM outbox_events WHERE applied_at = 0 ORDER BY id LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OutboxEvent
	for rows.Next() {
		var ev model.OutboxEvent
		var appliedAt, createdAt int64
		if err := rows.Scan(&ev.ID, &ev.IdempotencyKey, &ev.TableName, &ev.Operation,
			&ev.PrimaryKey, &ev.Payload, &appliedAt, &ev.RetryCount, &ev.LastError, &createdAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if appliedAt != 0 {
			t := fromNanos(appliedAt)
			ev.AppliedAt = &t
		}
		ev.CreatedAt = fromNanos(createdAt)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (r *outboxRepo) MarkApplied(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET applied_at = ? WHERE id = ?;`, toNanos(at), id)
	return err
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id int64, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = ? WHERE id = ?;`, lastError, id)
	return err
}
