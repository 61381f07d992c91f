package sqlite

import (
	"context"
	"database/sql"
)

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
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
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL,
		queued_at           INTEGER NOT NULL DEFAULT 0,
		processing_at       INTEGER NOT NULL DEFAULT 0,
		retry_count         INTEGER NOT NULL DEFAULT 0,
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
		cb_attempts         INTEGER NOT NULL DEFAULT 0,
		cb_success_count    INTEGER NOT NULL DEFAULT 0,
		cb_failure_count    INTEGER NOT NULL DEFAULT 0,
		cb_last_response    TEXT NOT NULL DEFAULT '',
		cb_last_error       TEXT NOT NULL DEFAULT '',
		cb_next_retry_after INTEGER NOT NULL DEFAULT 0,
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
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS task_payloads (
		job_id     TEXT PRIMARY KEY,
		payload    BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS worker_results (
		id         TEXT PRIMARY KEY,
		job_id     TEXT NOT NULL UNIQUE,
		payload    BLOB NOT NULL,
		status     TEXT NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS dedup_entries (
		fingerprint  TEXT PRIMARY KEY,
		first_job_id TEXT NOT NULL,
		last_job_id  TEXT NOT NULL,
		repeat_count INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		table_name      TEXT NOT NULL,
		operation       TEXT NOT NULL,
		primary_key     TEXT NOT NULL,
		payload         BLOB NOT NULL,
		applied_at      INTEGER NOT NULL DEFAULT 0,
		retry_count     INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS rule_configs (
		matter_id  TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		definition TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'active',
		updated_at INTEGER NOT NULL
	);`,
}
