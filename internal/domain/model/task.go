package model

import "time"

// TaskPayload is the full input needed to resume processing for a job. It is
// stored separately from the PreviewJob so the watchdog can re-submit work
// after a crash, and deleted once the job is terminal or abandoned.
type TaskPayload struct {
	JobID     string
	Payload   []byte
	CreatedAt time.Time
}
