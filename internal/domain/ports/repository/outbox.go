package repository

import (
	"context"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain/model"
)

type OutboxRepository interface {
	// Append journals an event; a duplicate idempotency key returns
	// domain.ErrAlreadyExists.
	Append(ctx context.Context, ev *model.OutboxEvent) error
	ListUnapplied(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkApplied(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
}
