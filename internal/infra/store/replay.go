package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

// ReplayOutbox applies journaled fallback writes to the primary. Each event's
// idempotency key is inserted into the primary outbox first; a duplicate key
// means the event was applied in an earlier replay and is skipped. That makes
// the replay exactly-once by construction, without locking.
func (c *Controller) ReplayOutbox(ctx context.Context) error {
	for {
		events, err := c.fallback.Outbox().ListUnapplied(ctx, c.cfg.ReplayBatchSize)
		if err != nil {
			return fmt.Errorf("list outbox: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, ev := range events {
			if err := c.replayOne(ctx, ev); err != nil {
				_ = c.fallback.Outbox().MarkFailed(ctx, ev.ID, err.Error())
				metrics.IncOutboxReplayed("error")
				return fmt.Errorf("replay %s: %w", ev.IdempotencyKey, err)
			}
		}
	}
}

func (c *Controller) replayOne(ctx context.Context, ev *model.OutboxEvent) error {
	now := time.Now()

	marker := &model.OutboxEvent{
		IdempotencyKey: ev.IdempotencyKey,
		TableName:      ev.TableName,
		Operation:      ev.Operation,
		PrimaryKey:     ev.PrimaryKey,
		Payload:        ev.Payload,
	}
	if err := c.primary.Outbox().Append(ctx, marker); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			metrics.IncOutboxReplayed("duplicate")
			return c.fallback.Outbox().MarkApplied(ctx, ev.ID, now)
		}
		return err
	}

	if err := c.applyEvent(ctx, ev); err != nil {
		return err
	}

	if err := c.primary.Outbox().MarkApplied(ctx, marker.ID, now); err != nil {
		return err
	}
	metrics.IncOutboxReplayed("applied")
	c.log.Debug().Str("key", ev.IdempotencyKey).Msg("outbox event replayed")
	return c.fallback.Outbox().MarkApplied(ctx, ev.ID, now)
}

func (c *Controller) applyEvent(ctx context.Context, ev *model.OutboxEvent) error {
	switch ev.TableName {
	case "preview_jobs":
		var j model.PreviewJob
		if err := json.Unmarshal(ev.Payload, &j); err != nil {
			return err
		}
		return c.primary.Previews().Save(ctx, &j)
	case "job_requests":
		var req model.JobRequest
		if err := json.Unmarshal(ev.Payload, &req); err != nil {
			return err
		}
		return c.primary.Requests().Save(ctx, &req)
	case "task_payloads":
		if ev.Operation == "delete" {
			return c.primary.Tasks().Delete(ctx, ev.PrimaryKey)
		}
		var t model.TaskPayload
		if err := json.Unmarshal(ev.Payload, &t); err != nil {
			return err
		}
		return c.primary.Tasks().Save(ctx, &t)
	case "worker_results":
		if ev.Operation == "delete" {
			return c.primary.Results().Delete(ctx, ev.PrimaryKey)
		}
		var wr model.WorkerResult
		if err := json.Unmarshal(ev.Payload, &wr); err != nil {
			return err
		}
		return c.primary.Results().Enqueue(ctx, &wr)
	case "dedup_entries":
		var e model.DedupEntry
		if err := json.Unmarshal(ev.Payload, &e); err != nil {
			return err
		}
		return c.primary.Dedup().Put(ctx, &e)
	case "rule_configs":
		var rc model.RuleConfig
		if err := json.Unmarshal(ev.Payload, &rc); err != nil {
			return err
		}
		return c.primary.Rules().Save(ctx, &rc)
	}
	return fmt.Errorf("%w: unknown outbox table %q", domain.ErrInvalidArgument, ev.TableName)
}
