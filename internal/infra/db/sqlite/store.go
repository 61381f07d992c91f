// Package sqlite is the embedded fallback storage backend. It keeps the
// service writable while the primary database is unreachable; writes landing
// here are journaled to the outbox for replay.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var _ repository.Backend = (*Store)(nil)

type Store struct {
	db       *sql.DB
	previews *previewRepo
	requests *requestRepo
	tasks    *taskRepo
	results  *resultRepo
	dedup    *dedupRepo
	outbox   *outboxRepo
	rules    *ruleRepo
}

// Open creates (or reopens) the single-file store and bootstraps the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The fallback is a single-writer store; serialize access at the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	s.previews = &previewRepo{db: db}
	s.requests = &requestRepo{db: db}
	s.tasks = &taskRepo{db: db}
	s.results = &resultRepo{db: db}
	s.dedup = &dedupRepo{db: db}
	s.outbox = &outboxRepo{db: db}
	s.rules = &ruleRepo{db: db}
	return s, nil
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(cctx)
}

func (s *Store) Previews() repository.PreviewRepository    { return s.previews }
func (s *Store) Requests() repository.JobRequestRepository { return s.requests }
func (s *Store) Tasks() repository.TaskRepository          { return s.tasks }
func (s *Store) Results() repository.ResultRepository      { return s.results }
func (s *Store) Dedup() repository.DedupRepository         { return s.dedup }
func (s *Store) Outbox() repository.OutboxRepository       { return s.outbox }
func (s *Store) Rules() repository.RuleRepository          { return s.rules }

func (s *Store) Close() { _ = s.db.Close() }

// Times are stored as unix nanoseconds; zero means "not set". This sidesteps
// driver-specific timestamp parsing in the fallback path.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
