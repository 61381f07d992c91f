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

var _ repository.PreviewRepository = (*previewRepo)(nil)

type previewRepo struct {
	pool *pgxpool.Pool
}

func NewPreviewRepo(pool *pgxpool.Pool) *previewRepo {
	return &previewRepo{pool: pool}
}

const previewColumns = `id, user_id, matter_id, third_party_req_id, status,
created_at, updated_at, queued_at, processing_at,
retry_count, last_worker_id, last_attempt_id, failure_code, failure_reason,
result, file_name, view_url, download_url,
cb_url, cb_status, cb_attempts, cb_success_count, cb_failure_count,
cb_last_response, cb_last_error, cb_next_retry_after, cb_pending_payload`

func scanPreview(row pgx.Row) (*model.PreviewJob, error) {
	var j model.PreviewJob
	var statusStr, cbStatusStr string
	var queuedAt, processingAt, nextRetry *time.Time
	err := row.Scan(
		&j.ID, &j.UserID, &j.MatterID, &j.ThirdPartyReqID, &statusStr,
		&j.CreatedAt, &j.UpdatedAt, &queuedAt, &processingAt,
		&j.RetryCount, &j.LastWorkerID, &j.LastAttemptID, &j.FailureCode, &j.FailureReason,
		&j.Result, &j.FileName, &j.ViewURL, &j.DownloadURL,
		&j.Callback.URL, &cbStatusStr, &j.Callback.Attempts, &j.Callback.SuccessCount, &j.Callback.FailureCount,
		&j.Callback.LastResponse, &j.Callback.LastError, &nextRetry, &j.Callback.PendingPayload,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.PreviewStatus(statusStr)
	j.Callback.Status = model.CallbackStatus(cbStatusStr)
	if queuedAt != nil {
		j.QueuedAt = *queuedAt
	}
	if processingAt != nil {
		j.ProcessingAt = *processingAt
	}
	if nextRetry != nil {
		j.Callback.NextRetryAfter = *nextRetry
	}
	return &j, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *previewRepo) Save(ctx context.Context, job *model.PreviewJob) error {
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO preview_jobs (` + previewColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at,
  queued_at = EXCLUDED.queued_at,
  processing_at = EXCLUDED.processing_at,
  retry_count = EXCLUDED.retry_count,
  last_worker_id = EXCLUDED.last_worker_id,
  last_attempt_id = EXCLUDED.last_attempt_id,
  failure_code = EXCLUDED.failure_code,
  failure_reason = EXCLUDED.failure_reason,
  result = EXCLUDED.result,
  file_name = EXCLUDED.file_name,
  view_url = EXCLUDED.view_url,
  download_url = EXCLUDED.download_url,
  cb_url = EXCLUDED.cb_url,
  cb_status = EXCLUDED.cb_status,
  cb_attempts = EXCLUDED.cb_attempts,
  cb_success_count = EXCLUDED.cb_success_count,
  cb_failure_count = EXCLUDED.cb_failure_count,
  cb_last_response = EXCLUDED.cb_last_response,
  cb_last_error = EXCLUDED.cb_last_error,
  cb_next_retry_after = EXCLUDED.cb_next_retry_after,
  cb_pending_payload = EXCLUDED.cb_pending_payload;`

	_, err := r.pool.Exec(ctx, q,
		job.ID, job.UserID, job.MatterID, job.ThirdPartyReqID, string(job.Status),
		job.CreatedAt, job.UpdatedAt, nullableTime(job.QueuedAt), nullableTime(job.ProcessingAt),
		job.RetryCount, job.LastWorkerID, job.LastAttemptID, job.FailureCode, job.FailureReason,
		job.Result, job.FileName, job.ViewURL, job.DownloadURL,
		job.Callback.URL, string(job.Callback.Status), job.Callback.Attempts,
		job.Callback.SuccessCount, job.Callback.FailureCount,
		job.Callback.LastResponse, job.Callback.LastError,
		nullableTime(job.Callback.NextRetryAfter), job.Callback.PendingPayload,
	)
	return err
}

func (r *previewRepo) FindByID(ctx context.Context, id string) (*model.PreviewJob, error) {
	const q = `SELECT ` + previewColumns + ` FROM preview_jobs WHERE id = $1;`
	return scanPreview(r.pool.QueryRow(ctx, q, id))
}

func (r *previewRepo) ListByStatus(ctx context.Context, status model.PreviewStatus, limit int) ([]*model.PreviewJob, error) {
	const q = `SELECT ` + previewColumns + ` FROM preview_jobs WHERE status = $1 ORDER BY created_at LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPreviews(rows)
}

func (r *previewRepo) MarkProcessing(ctx context.Context, jobID, workerID, attemptID string) (*model.PreviewJob, error) {
	now := time.Now()
	const q = `
UPDATE preview_jobs SET
  status = 'processing',
  processing_at = $2,
  updated_at = $2,
  retry_count = retry_count + 1,
  last_worker_id = $3,
  last_attempt_id = $4
WHERE id = $1 AND status = 'queued'
RETURNING ` + previewColumns + `;`
	return scanPreview(r.pool.QueryRow(ctx, q, jobID, now, workerID, attemptID))
}

func (r *previewRepo) UpdateCallback(ctx context.Context, jobID string, cb model.CallbackState) error {
	const q = `
UPDATE preview_jobs SET
  cb_url = $2, cb_status = $3, cb_attempts = $4, cb_success_count = $5,
  cb_failure_count = $6, cb_last_response = $7, cb_last_error = $8,
  cb_next_retry_after = $9, cb_pending_payload = $10, updated_at = $11
WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, jobID,
		cb.URL, string(cb.Status), cb.Attempts, cb.SuccessCount, cb.FailureCount,
		cb.LastResponse, cb.LastError, nullableTime(cb.NextRetryAfter), cb.PendingPayload, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *previewRepo) ListCallbacksDue(ctx context.Context, now time.Time, limit int) ([]*model.PreviewJob, error) {
	const q = `
SELECT ` + previewColumns + ` FROM preview_jobs
WHERE cb_status IN ('scheduled', 'retrying')
  AND (cb_next_retry_after IS NULL OR cb_next_retry_after <= $1)
ORDER BY updated_at
LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPreviews(rows)
}

func collectPreviews(rows pgx.Rows) ([]*model.PreviewJob, error) {
	var out []*model.PreviewJob
	for rows.Next() {
		j, err := scanPreview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
