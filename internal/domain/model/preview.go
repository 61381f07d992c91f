package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type PreviewStatus string

const (
	PreviewStatusPending    PreviewStatus = "pending"
	PreviewStatusQueued     PreviewStatus = "queued"
	PreviewStatusProcessing PreviewStatus = "processing"
	PreviewStatusCompleted  PreviewStatus = "completed"
	PreviewStatusFailed     PreviewStatus = "failed"
)

// IsTerminal reports whether the status permits no further processing
// transitions. Terminal jobs are only touched for callback bookkeeping.
func (s PreviewStatus) IsTerminal() bool {
	return s == PreviewStatusCompleted || s == PreviewStatusFailed
}

type CallbackStatus string

const (
	CallbackStatusNone      CallbackStatus = ""
	CallbackStatusScheduled CallbackStatus = "scheduled"
	CallbackStatusRetrying  CallbackStatus = "retrying"
	CallbackStatusSuccess   CallbackStatus = "success"
	CallbackStatusFailed    CallbackStatus = "failed"
)

// CallbackState is the persisted outbound-notification sub-state of a job.
// It survives restarts; the dispatcher's in-memory in-flight set is only an
// optimization on top of this.
type CallbackState struct {
	URL            string
	Status         CallbackStatus
	Attempts       int
	SuccessCount   int
	FailureCount   int
	LastResponse   string
	LastError      string
	NextRetryAfter time.Time
	PendingPayload string
}

// PreviewJob is the authoritative record of one submitted review request.
// Records are never deleted; they are the audit trail.
type PreviewJob struct {
	ID              string
	UserID          string
	MatterID        string
	ThirdPartyReqID string // optional, unique when present
	Status          PreviewStatus

	CreatedAt    time.Time
	UpdatedAt    time.Time
	QueuedAt     time.Time
	ProcessingAt time.Time

	RetryCount    int
	LastWorkerID  string
	LastAttemptID string

	FailureCode   string
	FailureReason string

	Result      string // serialized evaluation result
	FileName    string
	ViewURL     string
	DownloadURL string

	Callback CallbackState
}

// NewPreviewJob creates a Pending record with a server-generated, unguessable
// id. ULIDs sort by creation time, which keeps list queries cheap.
func NewPreviewJob(userID, matterID, thirdPartyReqID string) *PreviewJob {
	now := time.Now()
	return &PreviewJob{
		ID:              ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		UserID:          userID,
		MatterID:        matterID,
		ThirdPartyReqID: thirdPartyReqID,
		Status:          PreviewStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// JobRequest tracks a third party's own correlation id and points at the most
// recent attempt spawned for it, so re-queries always see the latest outcome.
type JobRequest struct {
	RequestID    string
	UserID       string
	MatterID     string
	LatestJobID  string
	LatestStatus PreviewStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
