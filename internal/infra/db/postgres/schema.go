package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// EnsureSchema creates the tables the service needs. Statements are
// idempotent so startup can run them unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS preview_jobs (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		matter_id           TEXT NOT NULL,
		third_party_req_id  TEXT NOT NULL DEFAULT '',
		status              TEXT NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL,
		queued_at           TIMESTAMPTZ,
		processing_at       TIMESTAMPTZ,
		retry_count         INT NOT NULL DEFAULT 0,
		last_worker_id      TEXT NOT NULL DEFAULT '',
		last_attempt_id     TEXT NOT NULL DEFAULT '',
		failure_code        TEXT NOT NULL DEFAULT '',
		failure_reason      TEXT NOT NULL DEFAULT '',
		result              TEXT NOT NULL DEFAULT '',
		file_name           TEXT NOT NULL DEFAULT '',
		view_url            TEXT NOT NULL DEFAULT '',
		download_url        TEXT NOT NULL DEFAULT '',
		cb_url              TEXT NOT NULL DEFAULT '',
		cb_status           TEXT NOT NULL DEFAULT '',
		cb_attempts         INT NOT NULL DEFAULT 0,
		cb_success_count    INT NOT NULL DEFAULT 0,
		cb_failure_count    INT NOT NULL DEFAULT 0,
		cb_last_response    TEXT NOT NULL DEFAULT '',
		cb_last_error       TEXT NOT NULL DEFAULT '',
		cb_next_retry_after TIMESTAMPTZ,
		cb_pending_payload  TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_preview_jobs_status ON preview_jobs (status);`,
	`CREATE INDEX IF NOT EXISTS idx_preview_jobs_cb ON preview_jobs (cb_status, cb_next_retry_after);`,
	`CREATE TABLE IF NOT EXISTS job_requests (
		request_id    TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		matter_id     TEXT NOT NULL,
		latest_job_id TEXT NOT NULL,
		latest_status TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS task_payloads (
		job_id     TEXT PRIMARY KEY,
		payload    BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS worker_results (
		id         TEXT PRIMARY KEY,
		job_id     TEXT NOT NULL UNIQUE,
		payload    BYTEA NOT NULL,
		status     TEXT NOT NULL,
		attempts   INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS dedup_entries (
		fingerprint  TEXT PRIMARY KEY,
		first_job_id TEXT NOT NULL,
		last_job_id  TEXT NOT NULL,
		repeat_count INT NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id              BIGSERIAL PRIMARY KEY,
		idempotency_key TEXT NOT NULL UNIQUE,
		table_name      TEXT NOT NULL,
		operation       TEXT NOT NULL,
		primary_key     TEXT NOT NULL,
		payload         BYTEA NOT NULL,
		applied_at      TIMESTAMPTZ,
		retry_count     INT NOT NULL DEFAULT 0,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS rule_configs (
		matter_id  TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		definition TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'active',
		updated_at TIMESTAMPTZ NOT NULL
	);`,
}
