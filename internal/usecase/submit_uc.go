package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

// SubmitInput carries one review request from the intake surface.
type SubmitInput struct {
	UserID          string
	MatterID        string
	ThirdPartyReqID string
	CallbackURL     string
	FileName        string
	Payload         []byte
}

// SubmitResult is the synchronous answer: a job id, immediately, whether the
// job is new or an earlier one was reused.
type SubmitResult struct {
	JobID       string
	Reused      bool
	RepeatCount int
}

// SubmitUseCase admits a request, applies repeat-submission dedup and leaves
// a Queued record plus its task payload behind. Actual processing is picked
// up asynchronously from storage.
type SubmitUseCase struct {
	store          repository.Store
	dedupThreshold int
	log            zerolog.Logger
}

func NewSubmitUseCase(store repository.Store, dedupThreshold int, log zerolog.Logger) *SubmitUseCase {
	if dedupThreshold <= 0 {
		dedupThreshold = 3
	}
	return &SubmitUseCase{
		store:          store,
		dedupThreshold: dedupThreshold,
		log:            log.With().Str("component", "submit").Logger(),
	}
}

func (uc *SubmitUseCase) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if in.UserID == "" || in.MatterID == "" {
		return nil, fmt.Errorf("%w: user_id and matter_id are required", domain.ErrInvalidArgument)
	}
	if len(in.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrPayloadMissing)
	}

	job := model.NewPreviewJob(in.UserID, in.MatterID, in.ThirdPartyReqID)
	job.Callback.URL = in.CallbackURL
	job.FileName = in.FileName

	fp := model.Fingerprint(in.UserID, in.MatterID, in.Payload, in.ThirdPartyReqID)
	decision, err := uc.store.Dedup().CheckAndUpdate(ctx, fp, job.ID, uc.dedupThreshold)
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if decision.ReuseExisting {
		metrics.IncJobSubmitted("reused")
		uc.log.Info().Str("job_id", decision.JobID).Int("repeat_count", decision.RepeatCount).
			Msg("repeat submission answered with existing job")
		return &SubmitResult{JobID: decision.JobID, Reused: true, RepeatCount: decision.RepeatCount}, nil
	}

	// Pending first, then the payload, then the flip to Queued. A crash in
	// between leaves a Pending record that never entered the queue, which the
	// status surface reports honestly.
	if err := uc.store.Previews().Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	task := &model.TaskPayload{JobID: job.ID, Payload: in.Payload, CreatedAt: job.CreatedAt}
	if err := uc.store.Tasks().Save(ctx, task); err != nil {
		return nil, fmt.Errorf("save task payload: %w", err)
	}

	now := time.Now()
	job.Status = model.PreviewStatusQueued
	job.QueuedAt = now
	job.UpdatedAt = now
	if err := uc.store.Previews().Save(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	if in.ThirdPartyReqID != "" {
		uc.upsertRequest(ctx, job)
	}

	metrics.IncJobSubmitted("new")
	uc.log.Info().Str("job_id", job.ID).Str("user_id", in.UserID).Str("matter_id", in.MatterID).
		Msg("job queued")
	return &SubmitResult{JobID: job.ID, RepeatCount: decision.RepeatCount}, nil
}

func (uc *SubmitUseCase) upsertRequest(ctx context.Context, job *model.PreviewJob) {
	req := &model.JobRequest{
		RequestID:    job.ThirdPartyReqID,
		UserID:       job.UserID,
		MatterID:     job.MatterID,
		LatestJobID:  job.ID,
		LatestStatus: job.Status,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	if err := uc.store.Requests().Save(ctx, req); err != nil {
		// Correlation bookkeeping only; the job itself is already queued.
		uc.log.Warn().Err(err).Str("request_id", req.RequestID).Msg("request record save failed")
	}
}
