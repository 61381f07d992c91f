package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

// memStore is a small in-memory repository.Store used by unit tests.
type memStore struct {
	previews *memPreviewRepo
	requests *memRequestRepo
	tasks    *memTaskRepo
	results  *memResultRepo
	dedup    *memDedupRepo
	rules    *memRuleRepo
}

func newMemStore() *memStore {
	return &memStore{
		previews: &memPreviewRepo{jobs: map[string]*model.PreviewJob{}},
		requests: &memRequestRepo{reqs: map[string]*model.JobRequest{}},
		tasks:    &memTaskRepo{tasks: map[string]*model.TaskPayload{}},
		results:  &memResultRepo{entries: map[string]*model.WorkerResult{}},
		dedup:    &memDedupRepo{entries: map[string]*model.DedupEntry{}},
		rules:    &memRuleRepo{rules: map[string]*model.RuleConfig{}},
	}
}

func (s *memStore) Previews() repository.PreviewRepository    { return s.previews }
func (s *memStore) Requests() repository.JobRequestRepository { return s.requests }
func (s *memStore) Tasks() repository.TaskRepository          { return s.tasks }
func (s *memStore) Results() repository.ResultRepository      { return s.results }
func (s *memStore) Dedup() repository.DedupRepository         { return s.dedup }
func (s *memStore) Rules() repository.RuleRepository          { return s.rules }

type memPreviewRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.PreviewJob
	saveErr error
}

func (m *memPreviewRepo) Save(ctx context.Context, job *model.PreviewJob) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memPreviewRepo) FindByID(ctx context.Context, id string) (*model.PreviewJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memPreviewRepo) ListByStatus(ctx context.Context, status model.PreviewStatus, limit int) ([]*model.PreviewJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PreviewJob
	for _, j := range m.jobs {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPreviewRepo) MarkProcessing(ctx context.Context, jobID, workerID, attemptID string) (*model.PreviewJob, error) {
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

func (m *memPreviewRepo) UpdateCallback(ctx context.Context, jobID string, cb model.CallbackState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.Callback = cb
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memPreviewRepo) ListCallbacksDue(ctx context.Context, now time.Time, limit int) ([]*model.PreviewJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PreviewJob
	for _, j := range m.jobs {
		switch j.Callback.Status {
		case model.CallbackStatusScheduled, model.CallbackStatusRetrying:
			if j.Callback.NextRetryAfter.IsZero() || !j.Callback.NextRetryAfter.After(now) {
				cp := *j
				out = append(out, &cp)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memRequestRepo struct {
	mu   sync.Mutex
	reqs map[string]*model.JobRequest
}

func (m *memRequestRepo) Save(ctx context.Context, req *model.JobRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.reqs[req.RequestID] = &cp
	return nil
}

func (m *memRequestRepo) FindByID(ctx context.Context, requestID string) (*model.JobRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reqs[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.TaskPayload
}

func (m *memTaskRepo) Save(ctx context.Context, task *model.TaskPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.JobID] = &cp
	return nil
}

func (m *memTaskRepo) FindByJobID(ctx context.Context, jobID string) (*model.TaskPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[jobID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tasks, jobID)
	return nil
}

type memResultRepo struct {
	mu      sync.Mutex
	entries map[string]*model.WorkerResult
}

func (m *memResultRepo) Enqueue(ctx context.Context, result *model.WorkerResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *result
	if cp.Status == "" {
		cp.Status = model.WorkerResultPending
	}
	m.entries[result.ID] = &cp
	return nil
}

func (m *memResultRepo) FetchPending(ctx context.Context, limit int) ([]*model.WorkerResult, error) {
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

func (m *memResultRepo) MarkDone(ctx context.Context, id string, status model.WorkerResultStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = status
	e.Attempts++
	e.LastError = lastError
	e.UpdatedAt = time.Now()
	return nil
}

func (m *memResultRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

type memDedupRepo struct {
	mu      sync.Mutex
	entries map[string]*model.DedupEntry
}

func (m *memDedupRepo) CheckAndUpdate(ctx context.Context, fingerprint, candidateJobID string, threshold int) (model.DedupDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	e, ok := m.entries[fingerprint]
	if !ok {
		m.entries[fingerprint] = &model.DedupEntry{
			Fingerprint: fingerprint,
			FirstJobID:  candidateJobID,
			LastJobID:   candidateJobID,
			RepeatCount: 1,
			LastSeenAt:  now,
		}
		return model.DedupDecision{RepeatCount: 1}, nil
	}
	e.RepeatCount++
	e.LastSeenAt = now
	if e.RepeatCount >= threshold && e.LastJobID != "" && e.RepeatCount > 1 {
		return model.DedupDecision{ReuseExisting: true, JobID: e.LastJobID, RepeatCount: e.RepeatCount}, nil
	}
	e.LastJobID = candidateJobID
	return model.DedupDecision{RepeatCount: e.RepeatCount}, nil
}

func (m *memDedupRepo) Find(ctx context.Context, fingerprint string) (*model.DedupEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[fingerprint]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memDedupRepo) Put(ctx context.Context, e *model.DedupEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.Fingerprint] = &cp
	return nil
}

type memRuleRepo struct {
	mu    sync.Mutex
	rules map[string]*model.RuleConfig
}

func (m *memRuleRepo) Save(ctx context.Context, rule *model.RuleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rule
	m.rules[rule.MatterID] = &cp
	return nil
}

func (m *memRuleRepo) FindByMatterID(ctx context.Context, matterID string) (*model.RuleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[matterID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRuleRepo) ListByStatus(ctx context.Context, status model.RuleStatus) ([]*model.RuleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RuleConfig
	for _, r := range m.rules {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockScheduler records callback scheduling calls.
type mockScheduler struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockScheduler) Schedule(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, jobID)
	return nil
}

func (m *mockScheduler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
