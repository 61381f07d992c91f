package model

import "time"

type WorkerResultStatus string

const (
	WorkerResultPending   WorkerResultStatus = "pending"
	WorkerResultCompleted WorkerResultStatus = "completed"
	WorkerResultFailed    WorkerResultStatus = "failed"
)

// WorkerResult is one entry in the worker result queue. JobID is unique: a
// second enqueue for the same job overwrites the pending entry instead of
// duplicating it.
type WorkerResult struct {
	ID        string
	JobID     string
	Payload   []byte
	Status    WorkerResultStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResultPayload is the deserialized form handed to result application.
type ResultPayload struct {
	JobID       string `json:"job_id"`
	Success     bool   `json:"success"`
	Evaluation  string `json:"evaluation,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	ViewURL     string `json:"view_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorReason string `json:"error_reason,omitempty"`
}
