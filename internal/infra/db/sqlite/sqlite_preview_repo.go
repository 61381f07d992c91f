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

var _ repository.PreviewRepository = (*previewRepo)(nil)

type previewRepo struct {
	db *sql.DB
}

const previewColumns = `id, user_id, matter_id, third_party_req_id, status,
created_at, updated_at, queued_at, processing_at,
retry_count, last_worker_id, last_attempt_id, failure_code, failure_reason,
result, file_name, view_url, download_url,
cb_url, cb_status, cb_attempts, cb_success_count, cb_failure_count,
cb_last_response, cb_last_error, cb_next_retry_after, cb_pending_payload`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreview(row rowScanner) (*model.PreviewJob, error) {
	var j model.PreviewJob
	var statusStr, cbStatusStr string
	var createdAt, updatedAt, queuedAt, processingAt, nextRetry int64
	err := row.Scan(
		&j.ID, &j.UserID, &j.MatterID, &j.ThirdPartyReqID, &statusStr,
		&createdAt, &updatedAt, &queuedAt, &processingAt,
		&j.RetryCount, &j.LastWorkerID, &j.LastAttemptID, &j.FailureCode, &j.FailureReason,
		&j.Result, &j.FileName, &j.ViewURL, &j.DownloadURL,
		&j.Callback.URL, &cbStatusStr, &j.Callback.Attempts, &j.Callback.SuccessCount, &j.Callback.FailureCount,
		&j.Callback.LastResponse, &j.Callback.LastError, &nextRetry, &j.Callback.PendingPayload,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.PreviewStatus(statusStr)
	j.Callback.Status = model.CallbackStatus(cbStatusStr)
	j.CreatedAt = fromNanos(createdAt)
	j.UpdatedAt = fromNanos(updatedAt)
	j.QueuedAt = fromNanos(queuedAt)
	j.ProcessingAt = fromNanos(processingAt)
	j.Callback.NextRetryAfter = fromNanos(nextRetry)
	return &j, nil
}

func (r *previewRepo) Save(ctx context.Context, job *model.PreviewJob) error {
	job.UpdatedAt = time.Now()
	const q = `
INSERT INTO preview_jobs (` + previewColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET
  status = excluded.status,
  updated_at = excluded.updated_at,
  queued_at = excluded.queued_at,
  processing_at = excluded.processing_at,
  retry_count = excluded.retry_count,
  last_worker_id = excluded.last_worker_id,
  last_attempt_id = excluded.last_attempt_id,
  failure_code = excluded.failure_code,
  failure_reason = excluded.failure_reason,
  result = excluded.result,
  file_name = excluded.file_name,
  view_url = excluded.view_url,
  download_url = excluded.download_url,
  cb_url = excluded.cb_url,
  cb_status = excluded.cb_status,
  cb_attempts = excluded.cb_attempts,
  cb_success_count = excluded.cb_success_count,
  cb_failure_count = excluded.cb_failure_count,
  cb_last_response = excluded.cb_last_response,
  cb_last_error = excluded.cb_last_error,
  cb_next_retry_after = excluded.cb_next_retry_after,
  cb_pending_payload = excluded.cb_pending_payload;`

	_, err := r.db.ExecContext(ctx, q,
		job.ID, job.UserID, job.MatterID, job.ThirdPartyReqID, string(job.Status),
		toNanos(job.CreatedAt), toNanos(job.UpdatedAt), toNanos(job.QueuedAt), toNanos(job.ProcessingAt),
		job.RetryCount, job.LastWorkerID, job.LastAttemptID, job.FailureCode, job.FailureReason,
		job.Result, job.FileName, job.ViewURL, job.DownloadURL,
		job.Callback.URL, string(job.Callback.Status), job.Callback.Attempts,
		job.Callback.SuccessCount, job.Callback.FailureCount,
		job.Callback.LastResponse, job.Callback.LastError,
		toNanos(job.Callback.NextRetryAfter), job.Callback.PendingPayload,
	)
	return err
}

func (r *previewRepo) FindByID(ctx context.Context, id string) (*model.PreviewJob, error) {
	const q = `SELECT ` + previewColumns + ` FROM preview_jobs WHERE id = ?;`
	return scanPreview(r.db.QueryRowContext(ctx, q, id))
}

func (r *previewRepo) ListByStatus(ctx context.Context, status model.PreviewStatus, limit int) ([]*model.PreviewJob, error) {
	const q = `SELECT ` + previewColumns + ` FROM preview_jobs WHERE status = ? ORDER BY created_at LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, string(status), limit)
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
  processing_at = ?,
  updated_at = ?,
  retry_count = retry_count + 1,
  last_worker_id = ?,
  last_attempt_id = ?
WHERE id = ? AND status = 'queued';`
	res, err := r.db.ExecContext(ctx, q, toNanos(now), toNanos(now), workerID, attemptID, jobID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, jobID)
}

func (r *previewRepo) UpdateCallback(ctx context.Context, jobID string, cb model.CallbackState) error {
	const q = `
UPDATE preview_jobs SET
  cb_url = ?, cb_status = ?, cb_attempts = ?, cb_success_count = ?,
  cb_failure_count = ?, cb_last_response = ?, cb_last_error = ?,
  cb_next_retry_after = ?, cb_pending_payload = ?, updated_at = ?
WHERE id = ?;`
	res, err := r.db.ExecContext(ctx, q,
		cb.URL, string(cb.Status), cb.Attempts, cb.SuccessCount, cb.FailureCount,
		cb.LastResponse, cb.LastError, toNanos(cb.NextRetryAfter), cb.PendingPayload,
		toNanos(time.Now()), jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *previewRepo) ListCallbacksDue(ctx context.Context, now time.Time, limit int) ([]*model.PreviewJob, error) {
	const q = `
SELECT ` + previewColumns + ` FROM preview_jobs
WHERE cb_status IN ('scheduled', 'retrying') AND cb_next_retry_after <= ?
ORDER BY updated_at
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, toNanos(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPreviews(rows)
}

func collectPreviews(rows *sql.Rows) ([]*model.PreviewJob, error) {
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
