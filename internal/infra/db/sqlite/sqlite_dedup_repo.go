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

var _ repository.DedupRepository = (*dedupRepo)(nil)

type dedupRepo struct {
	db *sql.DB
}

func (r *dedupRepo) CheckAndUpdate(ctx context.Context, fingerprint, candidateJobID string, threshold int) (model.DedupDecision, error) {
	const q = `
INSERT INTO dedup_entries (fingerprint, first_job_id, last_job_id, repeat_count, last_seen_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT (fingerprint) DO UPDATE SET
  repeat_count = repeat_count + 1,
  last_seen_at = excluded.last_seen_at
RETURNING last_job_id, repeat_count;`

	var lastJobID string
	var count int
	err := r.db.QueryRowContext(ctx, q, fingerprint, candidateJobID, candidateJobID, toNanos(time.Now())).
		Scan(&lastJobID, &count)
	if err != nil {
		return model.DedupDecision{}, err
	}

	if count >= threshold && lastJobID != "" && count > 1 {
		return model.DedupDecision{ReuseExisting: true, JobID: lastJobID, RepeatCount: count}, nil
	}
	if count > 1 {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE dedup_entries SET last_job_id = ? WHERE fingerprint = ?;`, candidateJobID, fingerprint); err != nil {
			return model.DedupDecision{}, err
		}
	}
	return model.DedupDecision{ReuseExisting: false, RepeatCount: count}, nil
}

func (r *dedupRepo) Put(ctx context.Context, e *model.DedupEntry) error {
	const q = `
INSERT INTO dedup_entries (fingerprint, first_job_id, last_job_id, repeat_count, last_seen_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (fingerprint) DO UPDATE SET
  last_job_id = excluded.last_job_id,
  repeat_count = MAX(repeat_count, excluded.repeat_count),
  last_seen_at = excluded.last_seen_at;`
	_, err := r.db.ExecContext(ctx, q, e.Fingerprint, e.FirstJobID, e.LastJobID, e.RepeatCount, toNanos(e.LastSeenAt))
	return err
}

func (r *dedupRepo) Find(ctx context.Context, fingerprint string) (*model.DedupEntry, error) {
	const q = `
SELECT fingerprint, first_job_id, last_job_id, repeat_count, last_seen_at
FROM dedup_entries WHERE fingerprint = ?;`
	var e model.DedupEntry
	var lastSeen int64
	err := r.db.QueryRowContext(ctx, q, fingerprint).Scan(
		&e.Fingerprint, &e.FirstJobID, &e.LastJobID, &e.RepeatCount, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	e.LastSeenAt = fromNanos(lastSeen)
	return &e, nil
}
