package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/domain/ports/usecase"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

// ResultProcessor drains the worker result queue: out-of-process workers
// enqueue raw outcome payloads, this loop applies them in batches with a
// bounded fan-out. Polling backs off exponentially while the queue is empty.
// An entry that fails to apply is parked as failed and never retried on its
// own; a fresh enqueue for the job replaces it.
type ResultProcessor struct {
	store   repository.Store
	applier usecase.ResultApplier

	batchSize   int
	concurrency int
	minPoll     time.Duration
	maxPoll     time.Duration
	log         zerolog.Logger
}

func NewResultProcessor(store repository.Store, applier usecase.ResultApplier, batchSize, concurrency int, minPoll, maxPoll time.Duration, log zerolog.Logger) *ResultProcessor {
	if batchSize <= 0 {
		batchSize = 20
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if minPoll <= 0 {
		minPoll = 500 * time.Millisecond
	}
	if maxPoll < minPoll {
		maxPoll = minPoll
	}
	return &ResultProcessor{
		store:       store,
		applier:     applier,
		batchSize:   batchSize,
		concurrency: concurrency,
		minPoll:     minPoll,
		maxPoll:     maxPoll,
		log:         log.With().Str("component", "result-processor").Logger(),
	}
}

// Run blocks until ctx is done. The batch in flight is finished before
// returning, so shutdown never abandons a half-applied entry.
func (p *ResultProcessor) Run(ctx context.Context) {
	p.log.Info().Msg("result processor started")
	interval := p.minPoll
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("result processor stopping")
			return
		case <-timer.C:
		}

		n := p.processBatch(ctx)
		if n == 0 {
			interval *= 2
			if interval > p.maxPoll {
				interval = p.maxPoll
			}
		} else {
			interval = p.minPoll
		}
		timer.Reset(interval)
	}
}

func (p *ResultProcessor) processBatch(ctx context.Context) int {
	entries, err := p.store.Results().FetchPending(ctx, p.batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("fetch pending results failed")
		return 0
	}
	if len(entries) == 0 {
		return 0
	}
	metrics.ObserveResultBatch(len(entries))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, entry := range entries {
		entry := entry
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.processEntry(ctx, entry)
		}()
	}
	wg.Wait()
	return len(entries)
}

func (p *ResultProcessor) processEntry(ctx context.Context, entry *model.WorkerResult) {
	log := p.log.With().Str("result_id", entry.ID).Str("job_id", entry.JobID).Logger()

	var rp model.ResultPayload
	if err := json.Unmarshal(entry.Payload, &rp); err != nil {
		log.Error().Err(err).Msg("undecodable result payload")
		_ = p.store.Results().MarkDone(ctx, entry.ID, model.WorkerResultFailed, err.Error())
		return
	}
	if rp.JobID == "" {
		rp.JobID = entry.JobID
	}

	if err := p.applier.Apply(ctx, &rp); err != nil {
		// Parked, not re-queued: an entry that cannot be applied needs an
		// operator (or a replacement enqueue), not another identical attempt.
		log.Error().Err(err).Msg("result application failed, entry parked")
		if err := p.store.Results().MarkDone(ctx, entry.ID, model.WorkerResultFailed, err.Error()); err != nil {
			log.Error().Err(err).Msg("park result entry failed")
		}
		return
	}

	if err := p.store.Results().Delete(ctx, entry.ID); err != nil {
		log.Warn().Err(err).Msg("applied result cleanup failed")
	}
}
