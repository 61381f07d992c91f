package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

// Redeliverer re-queues a callback delivery without resetting its state.
type Redeliverer interface {
	Redeliver(ctx context.Context, jobID string) error
}

// CallbackScanner periodically finds callbacks whose retry time has come and
// hands them back to the dispatcher. It is what makes retry schedules survive
// restarts: the dispatcher's queue is memory-only, the due times are not.
type CallbackScanner struct {
	store      repository.Store
	dispatcher Redeliverer
	every      time.Duration
	limit      int
	log        zerolog.Logger
}

func NewCallbackScanner(store repository.Store, dispatcher Redeliverer, every time.Duration, limit int, log zerolog.Logger) *CallbackScanner {
	if every <= 0 {
		every = time.Minute
	}
	if limit <= 0 {
		limit = 100
	}
	return &CallbackScanner{
		store:      store,
		dispatcher: dispatcher,
		every:      every,
		limit:      limit,
		log:        log.With().Str("component", "callback-scanner").Logger(),
	}
}

func (s *CallbackScanner) Run(ctx context.Context) error {
	s.log.Info().Dur("every", s.every).Msg("callback scanner started")
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("callback scanner stopping")
			return ctx.Err()
		case <-ticker.C:
			jobs, err := s.store.Previews().ListCallbacksDue(ctx, time.Now(), s.limit)
			if err != nil {
				s.log.Error().Err(err).Msg("due callback scan failed")
				continue
			}
			for _, job := range jobs {
				if err := s.dispatcher.Redeliver(ctx, job.ID); err != nil {
					s.log.Warn().Err(err).Str("job_id", job.ID).Msg("redeliver enqueue failed")
				}
			}
			if len(jobs) > 0 {
				s.log.Debug().Int("count", len(jobs)).Msg("due callbacks re-queued")
			}
		}
	}
}
