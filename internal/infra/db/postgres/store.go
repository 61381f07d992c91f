package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

var _ repository.Backend = (*Store)(nil)

// Store bundles the postgres repositories into the primary storage backend.
type Store struct {
	pool     *pgxpool.Pool
	previews *previewRepo
	requests *requestRepo
	tasks    *taskRepo
	results  *resultRepo
	dedup    *dedupRepo
	outbox   *outboxRepo
	rules    *ruleRepo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:     pool,
		previews: NewPreviewRepo(pool),
		requests: NewRequestRepo(pool),
		tasks:    NewTaskRepo(pool),
		results:  NewResultRepo(pool),
		dedup:    NewDedupRepo(pool),
		outbox:   NewOutboxRepo(pool),
		rules:    NewRuleRepo(pool),
	}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(cctx)
}

func (s *Store) Previews() repository.PreviewRepository  { return s.previews }
func (s *Store) Requests() repository.JobRequestRepository { return s.requests }
func (s *Store) Tasks() repository.TaskRepository        { return s.tasks }
func (s *Store) Results() repository.ResultRepository    { return s.results }
func (s *Store) Dedup() repository.DedupRepository       { return s.dedup }
func (s *Store) Outbox() repository.OutboxRepository     { return s.outbox }
func (s *Store) Rules() repository.RuleRepository        { return s.rules }

func (s *Store) Close() { s.pool.Close() }

// ReportPoolStats refreshes the pool gauges; main runs it on a ticker.
func (s *Store) ReportPoolStats() {
	st := s.pool.Stat()
	metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
}
