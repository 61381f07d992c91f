package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.RuleRepository = (*ruleRepo)(nil)

type ruleRepo struct {
	pool *pgxpool.Pool
}

func NewRuleRepo(pool *pgxpool.Pool) *ruleRepo {
	return &ruleRepo{pool: pool}
}

func (r *ruleRepo) Save(ctx context.Context, rule *model.RuleConfig) error {
	rule.UpdatedAt = time.Now()
	const q = `
INSERT INTO rule_configs (matter_id, name, definition, status, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (matter_id) DO UPDATE SET
  name = EXCLUDED.name,
  definition = EXCLUDED.definition,
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at;`
	_, err := r.pool.Exec(ctx, q, rule.MatterID, rule.Name, rule.Definition, string(rule.Status), rule.UpdatedAt)
	return err
}

func (r *ruleRepo) FindByMatterID(ctx context.Context, matterID string) (*model.RuleConfig, error) {
	const q = `SELECT matter_id, name, definition, status, updated_at FROM rule_configs WHERE matter_id = $1;`
	var rc model.RuleConfig
	var statusStr string
	err := r.pool.QueryRow(ctx, q, matterID).Scan(&rc.MatterID, &rc.Name, &rc.Definition, &statusStr, &rc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rc.Status = model.RuleStatus(statusStr)
	return &rc, nil
}

func (r *ruleRepo) ListByStatus(ctx context.Context, status model.RuleStatus) ([]*model.RuleConfig, error) {
	const q = `SELECT matter_id, name, definition, status, updated_at FROM rule_configs WHERE status = $1 ORDER BY matter_id;`
	rows, err := r.pool.Query(ctx, q, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RuleConfig
	for rows.Next() {
		var rc model.RuleConfig
		var statusStr string
		if err := rows.Scan(&rc.MatterID, &rc.Name, &rc.Definition, &statusStr, &rc.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		rc.Status = model.RuleStatus(statusStr)
		out = append(out, &rc)
	}
	return out, rows.Err()
}
