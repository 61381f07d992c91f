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

var _ repository.DedupRepository = (*dedupRepo)(nil)

type dedupRepo struct {
	pool *pgxpool.Pool
}

func NewDedupRepo(pool *pgxpool.Pool) *dedupRepo {
	return &dedupRepo{pool: pool}
}

func (r *dedupRepo) CheckAndUpdate(ctx context.Context, fingerprint, candidateJobID string, threshold int) (model.DedupDecision, error) {
	// Upsert increments the counter atomically; the decision is derived from
	// the post-increment count.
	const q = `
INSERT INTO dedup_entries (fingerprint, first_job_id, last_job_id, repeat_count, last_seen_at)
VALUES ($1, $2, $2, 1, $3)
ON CONFLICT (fingerprint) DO UPDATE SET
  repeat_count = dedup_entries.repeat_count + 1,
  last_seen_at = EXCLUDED.last_seen_at
RETURNING last_job_id, repeat_count;`

	var lastJobID string
	var count int
	if err := r.pool.QueryRow(ctx, q, fingerprint, candidateJobID, time.Now()).Scan(&lastJobID, &count); err != nil {
		return model.DedupDecision{}, err
	}

	if count >= threshold && lastJobID != "" && count > 1 {
		return model.DedupDecision{ReuseExisting: true, JobID: lastJobID, RepeatCount: count}, nil
	}

	// Allowed: the caller will create candidateJobID, record it as the most
	// recent job for this fingerprint.
	if count > 1 {
		const upd = `UPDATE dedup_entries SET last_job_id = $2 WHERE fingerprint = $1;`
		if _, err := r.pool.Exec(ctx, upd, fingerprint, candidateJobID); err != nil {
			return model.DedupDecision{}, err
		}
	}
	return model.DedupDecision{ReuseExisting: false, RepeatCount: count}, nil
}

func (r *dedupRepo) Put(ctx context.Context, e *model.DedupEntry) error {
	const q = `
INSERT INTO dedup_entries (fingerprint, first_job_id, last_job_id, repeat_count, last_seen_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (fingerprint) DO UPDATE SET
  last_job_id = EXCLUDED.last_job_id,
  repeat_count = GREATEST(dedup_entries.repeat_count, EXCLUDED.repeat_count),
  last_seen_at = EXCLUDED.last_seen_at;`
	_, err := r.pool.Exec(ctx, q, e.Fingerprint, e.FirstJobID, e.LastJobID, e.RepeatCount, e.LastSeenAt)
	return err
}

func (r *dedupRepo) Find(ctx context.Context, fingerprint string) (*model.DedupEntry, error) {
	const q = `
SELECT fingerprint, first_job_id, last_job_id, repeat_count, last_seen_at
FROM dedup_entries WHERE fingerprint = $1;`
	var e model.DedupEntry
	err := r.pool.QueryRow(ctx, q, fingerprint).Scan(
		&e.Fingerprint, &e.FirstJobID, &e.LastJobID, &e.RepeatCount, &e.LastSeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &e, nil
}
