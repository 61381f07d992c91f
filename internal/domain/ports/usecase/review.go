package usecase

import (
	"context"

	"github.com/tomshen124/ocr-server/internal/domain/model"
)

// ResultApplier is the completion write path shared by the in-process runner
// and the result queue drain. Applying a duplicate or stale outcome must be a
// no-op, never an error.
type ResultApplier interface {
	Apply(ctx context.Context, rp *model.ResultPayload) error
}
