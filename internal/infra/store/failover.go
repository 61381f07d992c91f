// Package store routes every storage call to the currently healthy backend.
// Writes that land on the fallback while the primary is down are journaled as
// outbox events and replayed once the primary recovers.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

type State int

const (
	StatePrimary State = iota
	StateFallback
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StatePrimary:
		return "primary"
	case StateFallback:
		return "fallback"
	case StateRecovering:
		return "recovering"
	}
	return "unknown"
}

type Config struct {
	HealthInterval  time.Duration
	PromoteAfter    int // consecutive healthy probes required to promote
	ReplayBatchSize int
}

var _ repository.Store = (*Controller)(nil)

// Controller is the storage failover facade. All repository calls route
// through the active backend; a primary failure demotes to the fallback and
// retries the same logical operation there once.
type Controller struct {
	primary  repository.Backend
	fallback repository.Backend
	cfg      Config
	log      *zerolog.Logger

	mu            sync.RWMutex
	state         State
	healthyProbes int
}

func NewController(primary, fallback repository.Backend, cfg Config, logger *zerolog.Logger) *Controller {
	l := logger.With().Str("component", "FailoverController").Logger()
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	if cfg.PromoteAfter <= 0 {
		cfg.PromoteAfter = 3
	}
	if cfg.ReplayBatchSize <= 0 {
		cfg.ReplayBatchSize = 100
	}
	metrics.SetFailoverState(int(StatePrimary))
	return &Controller{primary: primary, fallback: fallback, cfg: cfg, log: &l}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) active() repository.Backend {
	if c.State() == StatePrimary {
		return c.primary
	}
	return c.fallback
}

// demote switches routing to the fallback after a primary operation failure.
func (c *Controller) demote(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePrimary {
		c.state = StateFallback
		c.healthyProbes = 0
		metrics.SetFailoverState(int(StateFallback))
		metrics.IncFailoverTransition("fallback")
		c.log.Warn().Err(err).Msg("primary storage failed, demoting to fallback")
	}
}

// domainErr reports whether err is an application-level outcome rather than a
// backend failure. Those must not trigger failover.
func domainErr(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAlreadyExists) ||
		errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, domain.ErrReadDatabaseRow)
}

// journalEntry describes one logical write for outbox journaling.
type journalEntry struct {
	table   string
	op      string
	pk      string
	payload []byte
	seq     int64
}

// do runs op against the active backend, failing over once on a primary
// backend error. When the write lands on the fallback, journal (if non-nil)
// is appended to the fallback's outbox.
func (c *Controller) do(ctx context.Context, op func(b repository.Backend) error, journal func() *journalEntry) error {
	demoted := c.State() != StatePrimary
	if !demoted {
		err := op(c.primary)
		if err == nil || domainErr(err) {
			return err
		}
		c.demote(err)
	}

	err := op(c.fallback)
	if err == nil && journal != nil {
		c.appendJournal(ctx, journal())
	}
	return err
}

func (c *Controller) appendJournal(ctx context.Context, je *journalEntry) {
	if je == nil {
		return
	}
	ev := &model.OutboxEvent{
		IdempotencyKey: model.OutboxKey(je.table, je.op, je.pk, je.seq),
		TableName:      je.table,
		Operation:      je.op,
		PrimaryKey:     je.pk,
		Payload:        je.payload,
	}
	if err := c.fallback.Outbox().Append(ctx, ev); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		c.log.Error().Err(err).Str("key", ev.IdempotencyKey).Msg("outbox append failed")
	}
}

// RunHealthLoop probes the primary on a fixed interval. A healthy probe while
// demoted moves to Recovering; PromoteAfter consecutive healthy probes
// promote back to Primary, after replaying the outbox.
func (c *Controller) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	c.log.Info().Dur("interval", c.cfg.HealthInterval).Msg("health loop started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("health loop stopping")
			return
		case <-ticker.C:
			c.probe(ctx)
		}
	}
}

func (c *Controller) probe(ctx context.Context) {
	if c.State() == StatePrimary {
		return
	}
	err := c.primary.Ping(ctx)

	c.mu.Lock()
	switch {
	case err != nil:
		if c.state == StateRecovering {
			c.state = StateFallback
			metrics.SetFailoverState(int(StateFallback))
			metrics.IncFailoverTransition("fallback")
		}
		c.healthyProbes = 0
		c.mu.Unlock()
		return
	case c.state == StateFallback:
		c.state = StateRecovering
		c.healthyProbes = 1
		metrics.SetFailoverState(int(StateRecovering))
		metrics.IncFailoverTransition("recovering")
		c.log.Info().Msg("primary healthy, entering recovery")
		c.mu.Unlock()
		return
	default: // Recovering
		c.healthyProbes++
		if c.healthyProbes < c.cfg.PromoteAfter {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}

	// Enough consecutive healthy probes: replay then promote.
	if err := c.ReplayOutbox(ctx); err != nil {
		c.log.Error().Err(err).Msg("outbox replay failed, staying demoted")
		c.mu.Lock()
		c.state = StateFallback
		c.healthyProbes = 0
		metrics.SetFailoverState(int(StateFallback))
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.state = StatePrimary
	c.healthyProbes = 0
	c.mu.Unlock()
	metrics.SetFailoverState(int(StatePrimary))
	metrics.IncFailoverTransition("primary")
	c.log.Info().Msg("promoted back to primary storage")

	// A write that raced the flip may have landed on the fallback after the
	// drain above. New writes now route to the primary, so one more sweep
	// empties the journal for good instead of leaving stale snapshots to be
	// replayed over fresher rows on a later recovery.
	if err := c.ReplayOutbox(ctx); err != nil {
		c.log.Error().Err(err).Msg("post-promotion outbox drain failed")
	}
}
