package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.RuleRepository = (*ruleRepo)(nil)

type ruleRepo struct {
	db *sql.DB
}

func (r *ruleRepo) Save(ctx context.Context, rule *model.RuleConfig) error {
	rule.UpdatedAt = time.Now()
	const q = `
INSERT INTO rule_configs (matter_id, name, definition, status, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (matter_id) DO UPDATE SET
  name = excluded.name,
  definition = excluded.definition,
  status = excluded.status,
  updated_at = excluded.updated_at;`
	_, err := r.db.ExecContext(ctx, q, rule.MatterID, rule.Name, rule.Definition,
		string(rule.Status), toNanos(rule.UpdatedAt))
	return err
}

func (r *ruleRepo) FindByMatterID(ctx context.Context, matterID string) (*model.RuleConfig, error) {
	const q = `SELECT matter_id, name, definition, status, updated_at FROM rule_configs WHERE matter_id = ?;`
	var rc model.RuleConfig
	var statusStr string
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, q, matterID).Scan(&rc.MatterID, &rc.Name, &rc.Definition, &statusStr, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rc.Status = model.RuleStatus(statusStr)
	rc.UpdatedAt = fromNanos(updatedAt)
	return &rc, nil
}

func (r *ruleRepo) ListByStatus(ctx context.Context, status model.RuleStatus) ([]*model.RuleConfig, error) {
	const q = `SELECT matter_id, name, definition, status, updated_at FROM rule_configs WHERE status = ? ORDER BY matter_id;`
	rows, err := r.db.QueryContext(ctx, q, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RuleConfig
	for rows.Next() {
		var rc model.RuleConfig
		var statusStr string
		var updatedAt int64
		if err := rows.Scan(&rc.MatterID, &rc.Name, &rc.Definition, &statusStr, &updatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		rc.Status = model.RuleStatus(statusStr)
		rc.UpdatedAt = fromNanos(updatedAt)
		out = append(out, &rc)
	}
	return out, rows.Err()
}
