package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

// stubStore wires only the repositories a test needs; the rest stay nil.
type stubStore struct {
	previews repository.PreviewRepository
	tasks    repository.TaskRepository
	results  repository.ResultRepository
	rules    repository.RuleRepository
}

func (s *stubStore) Previews() repository.PreviewRepository    { return s.previews }
func (s *stubStore) Requests() repository.JobRequestRepository { return nil }
func (s *stubStore) Tasks() repository.TaskRepository          { return s.tasks }
func (s *stubStore) Results() repository.ResultRepository      { return s.results }
func (s *stubStore) Dedup() repository.DedupRepository         { return nil }
func (s *stubStore) Rules() repository.RuleRepository          { return s.rules }

type memResults struct {
	mu      sync.Mutex
	entries map[string]*model.WorkerResult
}

func newMemResults() *memResults {
	return &memResults{entries: map[string]*model.WorkerResult{}}
}

// Enqueue mirrors the repository upsert: a second enqueue for the same entry
// replaces it and resets the bookkeeping.
func (m *memResults) Enqueue(ctx context.Context, result *model.WorkerResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *result
	cp.Status = model.WorkerResultPending
	cp.Attempts = 0
	cp.LastError = ""
	m.entries[result.ID] = &cp
	return nil
}

func (m *memResults) FetchPending(ctx context.Context, limit int) ([]*model.WorkerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WorkerResult
	for _, e := range m.entries {
		if e.Status == model.WorkerResultPending {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memResults) MarkDone(ctx context.Context, id string, status model.WorkerResultStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = status
	e.Attempts++
	e.LastError = lastError
	return nil
}

func (m *memResults) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *memResults) get(id string) *model.WorkerResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

type memPreviews struct {
	mu   sync.Mutex
	jobs map[string]*model.PreviewJob
}

func newMemPreviews() *memPreviews { return &memPreviews{jobs: map[string]*model.PreviewJob{}} }

func (m *memPreviews) Save(ctx context.Context, job *model.PreviewJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memPreviews) FindByID(ctx context.Context, id string) (*model.PreviewJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memPreviews) ListByStatus(ctx context.Context, status model.PreviewStatus, limit int) ([]*model.PreviewJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PreviewJob
	for _, j := range m.jobs {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPreviews) MarkProcessing(ctx context.Context, jobID, workerID, attemptID string) (*model.PreviewJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != model.PreviewStatusQueued {
		return nil, domain.ErrNotFound
	}
	now := time.Now()
	j.Status = model.PreviewStatusProcessing
	j.ProcessingAt = now
	j.UpdatedAt = now
	j.RetryCount++
	j.LastWorkerID = workerID
	j.LastAttemptID = attemptID
	cp := *j
	return &cp, nil
}

func (m *memPreviews) UpdateCallback(ctx context.Context, jobID string, cb model.CallbackState) error {
	return nil
}

func (m *memPreviews) ListCallbacksDue(ctx context.Context, now time.Time, limit int) ([]*model.PreviewJob, error) {
	return nil, nil
}

type memTasks struct {
	mu    sync.Mutex
	tasks map[string]*model.TaskPayload
}

func newMemTasks() *memTasks { return &memTasks{tasks: map[string]*model.TaskPayload{}} }

func (m *memTasks) Save(ctx context.Context, task *model.TaskPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.JobID] = &cp
	return nil
}

func (m *memTasks) FindByJobID(ctx context.Context, jobID string) (*model.TaskPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, jobID)
	return nil
}

// stubRules returns a fixed rule or ErrNotFound.
type stubRules struct{ rule *model.RuleConfig }

func (s stubRules) Save(ctx context.Context, rule *model.RuleConfig) error { return nil }
func (s stubRules) FindByMatterID(ctx context.Context, matterID string) (*model.RuleConfig, error) {
	if s.rule == nil {
		return nil, domain.ErrNotFound
	}
	cp := *s.rule
	return &cp, nil
}
func (s stubRules) ListByStatus(ctx context.Context, status model.RuleStatus) ([]*model.RuleConfig, error) {
	return nil, nil
}

// mockApplier records applied payloads.
type mockApplier struct {
	mu      sync.Mutex
	applied []*model.ResultPayload
	err     error
}

func (m *mockApplier) Apply(ctx context.Context, rp *model.ResultPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *rp
	m.applied = append(m.applied, &cp)
	return nil
}

func (m *mockApplier) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockApplier) last() *model.ResultPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.applied) == 0 {
		return nil
	}
	return m.applied[len(m.applied)-1]
}

func (m *mockApplier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

// mockEngine returns a fixed payload or error.
type mockEngine struct {
	rp    *model.ResultPayload
	err   error
	calls int
	mu    sync.Mutex
}

func (m *mockEngine) Evaluate(ctx context.Context, job *model.PreviewJob, task *model.TaskPayload, rule *model.RuleConfig) (*model.ResultPayload, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cp := *m.rp
	return &cp, nil
}

// mockBeats counts heartbeat writes.
type mockBeats struct {
	mu    sync.Mutex
	beats int
}

func (m *mockBeats) Beat(ctx context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beats++
	return nil
}
