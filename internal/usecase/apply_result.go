package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

// ResultApplier turns a worker outcome into the job's terminal state. It is
// the single write path for completion: the in-process runner and the result
// queue drain both funnel through Apply, so applying the same outcome twice
// is harmless.
type ResultApplier struct {
	store     repository.Store
	callbacks adapter.CallbackScheduler
	log       zerolog.Logger
}

func NewResultApplier(store repository.Store, callbacks adapter.CallbackScheduler, log zerolog.Logger) *ResultApplier {
	return &ResultApplier{
		store:     store,
		callbacks: callbacks,
		log:       log.With().Str("component", "result-applier").Logger(),
	}
}

// Apply finalizes the job named by the payload. Unknown jobs and jobs already
// in a terminal state are logged and dropped, never treated as errors, so a
// duplicate or stale result cannot wedge the result queue.
func (uc *ResultApplier) Apply(ctx context.Context, rp *model.ResultPayload) error {
	if rp == nil || rp.JobID == "" {
		return domain.ErrInvalidArgument
	}

	job, err := uc.store.Previews().FindByID(ctx, rp.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn().Str("job_id", rp.JobID).Msg("result for unknown job dropped")
			return nil
		}
		return err
	}
	if job.Status.IsTerminal() {
		uc.log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).
			Msg("result for terminal job ignored")
		return nil
	}

	now := time.Now()
	if rp.Success {
		job.Status = model.PreviewStatusCompleted
		job.Result = rp.Evaluation
		if rp.FileName != "" {
			job.FileName = rp.FileName
		}
		job.ViewURL = rp.ViewURL
		job.DownloadURL = rp.DownloadURL
		job.FailureCode = ""
		job.FailureReason = ""
	} else {
		job.Status = model.PreviewStatusFailed
		job.FailureCode = rp.ErrorCode
		job.FailureReason = rp.ErrorReason
	}
	job.UpdatedAt = now

	if err := uc.store.Previews().Save(ctx, job); err != nil {
		return err
	}
	metrics.IncJobProcessed(string(job.Status))

	uc.updateRequestPointer(ctx, job)

	// The payload is only needed while the job can still be retried.
	if err := uc.store.Tasks().Delete(ctx, job.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		uc.log.Warn().Err(err).Str("job_id", job.ID).Msg("task payload cleanup failed")
	}

	if job.Callback.URL != "" {
		if err := uc.callbacks.Schedule(ctx, job.ID); err != nil {
			uc.log.Error().Err(err).Str("job_id", job.ID).Msg("callback scheduling failed")
		}
	}

	uc.log.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("job finished")
	return nil
}

func (uc *ResultApplier) updateRequestPointer(ctx context.Context, job *model.PreviewJob) {
	if job.ThirdPartyReqID == "" {
		return
	}
	req, err := uc.store.Requests().FindByID(ctx, job.ThirdPartyReqID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn().Err(err).Str("request_id", job.ThirdPartyReqID).Msg("request lookup failed")
		}
		return
	}
	// A newer attempt may already own the pointer.
	if req.LatestJobID != job.ID {
		return
	}
	req.LatestStatus = job.Status
	req.UpdatedAt = job.UpdatedAt
	if err := uc.store.Requests().Save(ctx, req); err != nil {
		uc.log.Warn().Err(err).Str("request_id", req.RequestID).Msg("request pointer update failed")
	}
}
