package adapter

import (
	"context"

	"github.com/tomshen124/ocr-server/internal/domain/model"
)

// ReviewEngine runs the OCR/rule-evaluation pipeline for one job. The real
// engine lives outside this service; NoopEngine ships for dev and tests.
type ReviewEngine interface {
	Evaluate(ctx context.Context, job *model.PreviewJob, task *model.TaskPayload, rule *model.RuleConfig) (*model.ResultPayload, error)
}

// NoopEngine immediately succeeds with an empty evaluation.
type NoopEngine struct{}

func (NoopEngine) Evaluate(_ context.Context, job *model.PreviewJob, _ *model.TaskPayload, _ *model.RuleConfig) (*model.ResultPayload, error) {
	return &model.ResultPayload{JobID: job.ID, Success: true}, nil
}
