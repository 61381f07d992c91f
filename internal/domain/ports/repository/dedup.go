package repository

import (
	"context"

	"github.com/tomshen124/ocr-server/internal/domain/model"
)

type DedupRepository interface {
	// CheckAndUpdate atomically records a sighting of fingerprint. On first
	// sighting it inserts with repeat_count=1 and candidateJobID as the last
	// job id. On later sightings it increments; once the new count reaches
	// threshold and a prior job id exists the decision is ReuseExisting and
	// the caller must not create a new job.
	CheckAndUpdate(ctx context.Context, fingerprint, candidateJobID string, threshold int) (model.DedupDecision, error)
	Find(ctx context.Context, fingerprint string) (*model.DedupEntry, error)
	// Put upserts a full entry; used by outbox replay.
	Put(ctx context.Context, e *model.DedupEntry) error
}
