package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/domain/ports/usecase"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

// Watchdog sweeps jobs stuck in processing. A job is stuck when its
// processing time exceeded the timeout and its worker's heartbeat is stale
// (or absent). Stuck jobs are requeued while the retry budget lasts, then
// finalized as failed through the shared completion path.
type Watchdog struct {
	store      repository.Store
	heartbeats adapter.HeartbeatProvider
	applier    usecase.ResultApplier

	interval       time.Duration
	procTimeout    time.Duration
	maxRetries     int
	heartbeatGrace time.Duration
	batchSize      int
	log            zerolog.Logger
}

func NewWatchdog(
	store repository.Store,
	heartbeats adapter.HeartbeatProvider,
	applier usecase.ResultApplier,
	interval, procTimeout time.Duration,
	maxRetries int,
	heartbeatGrace time.Duration,
	batchSize int,
	log zerolog.Logger,
) *Watchdog {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Watchdog{
		store:          store,
		heartbeats:     heartbeats,
		applier:        applier,
		interval:       interval,
		procTimeout:    procTimeout,
		maxRetries:     maxRetries,
		heartbeatGrace: heartbeatGrace,
		batchSize:      batchSize,
		log:            log.With().Str("component", "watchdog").Logger(),
	}
}

func (w *Watchdog) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("timeout", w.procTimeout).Msg("watchdog started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("watchdog stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.log.Error().Err(err).Msg("watchdog sweep failed")
			}
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context) error {
	jobs, err := w.store.Previews().ListByStatus(ctx, model.PreviewStatusProcessing, w.batchSize)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, job := range jobs {
		if job.ProcessingAt.IsZero() || now.Sub(job.ProcessingAt) <= w.procTimeout {
			continue
		}
		if w.workerAlive(ctx, job.LastWorkerID) {
			// Slow but alive; leave it to finish.
			continue
		}
		if err := w.rescue(ctx, job, now); err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("rescue failed")
		}
	}
	return nil
}

// workerAlive reports whether the owning worker beat within the grace period.
func (w *Watchdog) workerAlive(ctx context.Context, workerID string) bool {
	if workerID == "" {
		return false
	}
	info, err := w.heartbeats.GetHeartbeatInfo(ctx, workerID)
	if err != nil || info == nil {
		return false
	}
	return info.SecondsSinceLastBeat <= w.heartbeatGrace.Seconds()
}

func (w *Watchdog) rescue(ctx context.Context, job *model.PreviewJob, now time.Time) error {
	log := w.log.With().Str("job_id", job.ID).Str("worker_id", job.LastWorkerID).
		Int("retry_count", job.RetryCount).Logger()

	if job.RetryCount >= w.maxRetries {
		log.Warn().Msg("retry budget exhausted, failing job")
		metrics.IncWatchdogAction("failed")
		return w.applier.Apply(ctx, &model.ResultPayload{
			JobID:       job.ID,
			ErrorCode:   "retries_exhausted",
			ErrorReason: domain.ErrRetriesExhausted.Error(),
		})
	}

	// The payload must still exist for another attempt to make sense.
	if _, err := w.store.Tasks().FindByJobID(ctx, job.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Error().Msg("abandoned job has no payload, failing")
			metrics.IncWatchdogAction("failed")
			return w.applier.Apply(ctx, &model.ResultPayload{
				JobID:       job.ID,
				ErrorCode:   "payload_missing",
				ErrorReason: domain.ErrPayloadMissing.Error(),
			})
		}
		return err
	}

	// retry_count is bumped by the next MarkProcessing claim, not here.
	job.Status = model.PreviewStatusQueued
	job.QueuedAt = now
	job.UpdatedAt = now
	if err := w.store.Previews().Save(ctx, job); err != nil {
		return err
	}
	metrics.IncWatchdogAction("requeued")
	log.Warn().Msg("abandoned job requeued")
	return nil
}
