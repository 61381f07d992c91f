package repository

import (
	"context"

	"github.com/tomshen124/ocr-server/internal/domain/model"
)

type RuleRepository interface {
	Save(ctx context.Context, rule *model.RuleConfig) error
	FindByMatterID(ctx context.Context, matterID string) (*model.RuleConfig, error)
	ListByStatus(ctx context.Context, status model.RuleStatus) ([]*model.RuleConfig, error)
}
