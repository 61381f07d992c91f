package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

var _ repository.RuleRepository = (*RuleCacheDecorator)(nil)

// RuleCacheDecorator is a short-TTL read-through cache in front of the rule
// repository, so the storage layer is not queried on every job. Absence is
// never cached: a missing config is re-fetched each time, so a freshly
// published rule takes effect immediately.
type RuleCacheDecorator struct {
	inner repository.RuleRepository
	cache RedisClient
	ttl   time.Duration
}

func NewRuleCacheDecorator(inner repository.RuleRepository, cache RedisClient, ttl time.Duration) *RuleCacheDecorator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RuleCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

const ruleVersionKey = "rule:ver"

// key embeds the global cache version so InvalidateAll is one INCR, not a
// keyspace scan.
func (d *RuleCacheDecorator) key(ctx context.Context, matterID string) string {
	ver, err := d.cache.Get(ctx, ruleVersionKey)
	if err != nil {
		ver = "0"
	}
	return fmt.Sprintf("rule:v%s:%s", ver, matterID)
}

func (d *RuleCacheDecorator) FindByMatterID(ctx context.Context, matterID string) (*model.RuleConfig, error) {
	key := d.key(ctx, matterID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var rc model.RuleConfig
		if json.Unmarshal([]byte(val), &rc) == nil {
			metrics.IncCacheRequest("rule", "hit")
			return &rc, nil
		}
	}

	metrics.IncCacheRequest("rule", "miss")
	rc, err := d.inner.FindByMatterID(ctx, matterID)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(rc); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return rc, nil
}

// Save writes through and invalidates the cached entry.
func (d *RuleCacheDecorator) Save(ctx context.Context, rule *model.RuleConfig) error {
	if err := d.inner.Save(ctx, rule); err != nil {
		return err
	}
	return d.Invalidate(ctx, rule.MatterID)
}

func (d *RuleCacheDecorator) ListByStatus(ctx context.Context, status model.RuleStatus) ([]*model.RuleConfig, error) {
	// Admin-path listing bypasses the cache.
	return d.inner.ListByStatus(ctx, status)
}

// Invalidate forces the next read for matterID to hit the repository.
func (d *RuleCacheDecorator) Invalidate(ctx context.Context, matterID string) error {
	return d.cache.Del(ctx, d.key(ctx, matterID))
}

// InvalidateAll bumps the cache version; every existing entry becomes
// unreachable and expires via its TTL.
func (d *RuleCacheDecorator) InvalidateAll(ctx context.Context) error {
	_, err := d.cache.Incr(ctx, ruleVersionKey)
	return err
}
