package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/domain/ports/usecase"
)

const queuedScanBatch = 50

// JobRunner drives queued jobs through the review engine. It polls storage
// rather than holding an in-memory queue, so jobs queued before a restart are
// picked up again without any recovery step. Ownership of a job is taken via
// the queued->processing transition in storage; a job submitted to the pool
// twice is processed once.
type JobRunner struct {
	store      repository.Store
	admission  *Admission
	rules      repository.RuleRepository
	engine     adapter.ReviewEngine
	heartbeats adapter.HeartbeatWriter
	applier    usecase.ResultApplier

	workerID   string
	maxRetries int
	beatEvery  time.Duration
	log        zerolog.Logger
}

func NewJobRunner(
	store repository.Store,
	admission *Admission,
	rules repository.RuleRepository,
	engine adapter.ReviewEngine,
	heartbeats adapter.HeartbeatWriter,
	applier usecase.ResultApplier,
	maxRetries int,
	beatEvery time.Duration,
	log zerolog.Logger,
) *JobRunner {
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	if beatEvery <= 0 {
		beatEvery = 10 * time.Second
	}
	return &JobRunner{
		store:      store,
		admission:  admission,
		rules:      rules,
		engine:     engine,
		heartbeats: heartbeats,
		applier:    applier,
		workerID:   fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		maxRetries: maxRetries,
		beatEvery:  beatEvery,
		log:        log.With().Str("component", "job-runner").Logger(),
	}
}

func (r *JobRunner) WorkerID() string { return r.workerID }

// Start polls for queued jobs and feeds them to the pool. Run in a goroutine.
func (r *JobRunner) Start(ctx context.Context, pool *Pool) {
	r.log.Info().Str("worker_id", r.workerID).Msg("job runner started")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("job runner stopping")
			return
		case <-ticker.C:
			jobs, err := r.store.Previews().ListByStatus(ctx, model.PreviewStatusQueued, queuedScanBatch)
			if err != nil {
				r.log.Error().Err(err).Msg("queued scan failed")
				continue
			}
			for _, job := range jobs {
				jobID := job.ID
				_ = pool.Submit(func(ctx context.Context) error {
					return r.processOne(ctx, jobID)
				})
			}
		}
	}
}

func (r *JobRunner) processOne(ctx context.Context, jobID string) error {
	release, ok := r.admission.TryAcquire()
	if !ok {
		r.log.Info().Str("job_id", jobID).Msg("no free slot, waiting")
		var err error
		release, err = r.admission.Acquire(ctx)
		if err != nil {
			return nil // shutting down
		}
	}
	defer release()

	attemptID := uuid.NewString()
	job, err := r.store.Previews().MarkProcessing(ctx, jobID, r.workerID, attemptID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil // claimed by another attempt, or no longer queued
		}
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}

	stopBeat := r.startHeartbeat(ctx)
	defer stopBeat()

	start := time.Now()
	log := r.log.With().Str("job_id", job.ID).Str("attempt_id", attemptID).Logger()
	log.Info().Int("retry_count", job.RetryCount).Msg("processing job")

	task, err := r.store.Tasks().FindByJobID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Error().Msg("task payload missing, failing job")
			return r.applier.Apply(ctx, &model.ResultPayload{
				JobID:       job.ID,
				ErrorCode:   "payload_missing",
				ErrorReason: domain.ErrPayloadMissing.Error(),
			})
		}
		return fmt.Errorf("load task payload: %w", err)
	}

	rule := r.loadRule(ctx, job.MatterID, log)

	rp, err := r.engine.Evaluate(ctx, job, task, rule)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("engine evaluation failed")
		return r.retryOrFail(ctx, job, err)
	}
	rp.JobID = job.ID

	log.Info().Bool("success", rp.Success).Dur("duration", time.Since(start)).Msg("engine evaluation done")
	return r.applier.Apply(ctx, rp)
}

// loadRule is best-effort: a matter without a published rule config, or a
// rule store hiccup, still gets the engine's default handling.
func (r *JobRunner) loadRule(ctx context.Context, matterID string, log zerolog.Logger) *model.RuleConfig {
	rule, err := r.rules.FindByMatterID(ctx, matterID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("matter_id", matterID).Msg("rule lookup failed")
		}
		return nil
	}
	return rule
}

// retryOrFail requeues an engine failure while the retry budget lasts, then
// finalizes the job as failed.
func (r *JobRunner) retryOrFail(ctx context.Context, job *model.PreviewJob, evalErr error) error {
	if job.RetryCount >= r.maxRetries {
		return r.applier.Apply(ctx, &model.ResultPayload{
			JobID:       job.ID,
			ErrorCode:   "engine_error",
			ErrorReason: evalErr.Error(),
		})
	}

	// retry_count is bumped by the next MarkProcessing claim, not here.
	now := time.Now()
	job.Status = model.PreviewStatusQueued
	job.QueuedAt = now
	job.UpdatedAt = now
	if err := r.store.Previews().Save(ctx, job); err != nil {
		return fmt.Errorf("requeue job %s: %w", job.ID, err)
	}
	r.log.Warn().Str("job_id", job.ID).Int("retry_count", job.RetryCount).Msg("job requeued after engine failure")
	return nil
}

// startHeartbeat keeps the worker's liveness stamp fresh while a job is held.
func (r *JobRunner) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		_ = r.heartbeats.Beat(ctx, r.workerID)
		ticker := time.NewTicker(r.beatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.heartbeats.Beat(ctx, r.workerID); err != nil {
					r.log.Warn().Err(err).Msg("heartbeat write failed")
				}
			}
		}
	}()
	return func() { close(done) }
}
