package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

var errBackendDown = errors.New("backend down")

// memBackend is an in-memory repository.Backend. Setting down makes every
// call fail, simulating a dead database.
type memBackend struct {
	name string

	mu     sync.Mutex
	down   bool
	jobs   map[string]*model.PreviewJob
	reqs   map[string]*model.JobRequest
	tasks  map[string]*model.TaskPayload
	result map[string]*model.WorkerResult
	dedup  map[string]*model.DedupEntry
	rules  map[string]*model.RuleConfig

	events  []*model.OutboxEvent
	nextID  int64
	applied map[int64]bool

	// afterEmptyList fires once when ListUnapplied comes back empty, outside
	// the backend lock. Tests use it to interleave a write with a drain.
	afterEmptyList func()
}

func newMemBackend(name string) *memBackend {
	return &memBackend{
		name:    name,
		jobs:    map[string]*model.PreviewJob{},
		reqs:    map[string]*model.JobRequest{},
		tasks:   map[string]*model.TaskPayload{},
		result:  map[string]*model.WorkerResult{},
		dedup:   map[string]*model.DedupEntry{},
		rules:   map[string]*model.RuleConfig{},
		applied: map[int64]bool{},
	}
}

func (b *memBackend) setDown(down bool) {
	b.mu.Lock()
	b.down = down
	b.mu.Unlock()
}

func (b *memBackend) check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return errBackendDown
	}
	return nil
}

func (b *memBackend) Name() string { return b.name }
func (b *memBackend) Close()       {}
func (b *memBackend) Ping(ctx context.Context) error {
	return b.check()
}

func (b *memBackend) Previews() repository.PreviewRepository    { return &mbPreviews{b} }
func (b *memBackend) Requests() repository.JobRequestRepository { return &mbRequests{b} }
func (b *memBackend) Tasks() repository.TaskRepository          { return &mbTasks{b} }
func (b *memBackend) Results() repository.ResultRepository      { return &mbResults{b} }
func (b *memBackend) Dedup() repository.DedupRepository         { return &mbDedup{b} }
func (b *memBackend) Rules() repository.RuleRepository          { return &mbRules{b} }
func (b *memBackend) Outbox() repository.OutboxRepository       { return &mbOutbox{b} }

type mbPreviews struct{ b *memBackend }

func (r *mbPreviews) Save(ctx context.Context, job *model.PreviewJob) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	cp := *job
	r.b.jobs[job.ID] = &cp
	return nil
}

func (r *mbPreviews) FindByID(ctx context.Context, id string) (*model.PreviewJob, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	j, ok := r.b.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *mbPreviews) ListByStatus(ctx context.Context, status model.PreviewStatus, limit int) ([]*model.PreviewJob, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *mbPreviews) MarkProcessing(ctx context.Context, jobID, workerID, attemptID string) (*model.PreviewJob, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	return nil, domain.ErrNotFound
}

func (r *mbPreviews) UpdateCallback(ctx context.Context, jobID string, cb model.CallbackState) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	j, ok := r.b.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.Callback = cb
	return nil
}

func (r *mbPreviews) ListCallbacksDue(ctx context.Context, now time.Time, limit int) ([]*model.PreviewJob, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	return nil, nil
}

type mbRequests struct{ b *memBackend }

func (r *mbRequests) Save(ctx context.Context, req *model.JobRequest) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	cp := *req
	r.b.reqs[req.RequestID] = &cp
	return nil
}

func (r *mbRequests) FindByID(ctx context.Context, requestID string) (*model.JobRequest, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	req, ok := r.b.reqs[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

type mbTasks struct{ b *memBackend }

func (r *mbTasks) Save(ctx context.Context, task *model.TaskPayload) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	cp := *task
	r.b.tasks[task.JobID] = &cp
	return nil
}

func (r *mbTasks) FindByJobID(ctx context.Context, jobID string) (*model.TaskPayload, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	t, ok := r.b.tasks[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *mbTasks) Delete(ctx context.Context, jobID string) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	delete(r.b.tasks, jobID)
	return nil
}

type mbResults struct{ b *memBackend }

func (r *mbResults) Enqueue(ctx context.Context, result *model.WorkerResult) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	cp := *result
	r.b.result[result.JobID] = &cp
	return nil
}

func (r *mbResults) FetchPending(ctx context.Context, limit int) ([]*model.WorkerResult, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *mbResults) MarkDone(ctx context.Context, id string, status model.WorkerResultStatus, lastError string) error {
	return r.b.check()
}

func (r *mbResults) Delete(ctx context.Context, id string) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	delete(r.b.result, id)
	return nil
}

type mbDedup struct{ b *memBackend }

func (r *mbDedup) CheckAndUpdate(ctx context.Context, fingerprint, candidateJobID string, threshold int) (model.DedupDecision, error) {
	if err := r.b.check(); err != nil {
		return model.DedupDecision{}, err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	e, ok := r.b.dedup[fingerprint]
	if !ok {
		r.b.dedup[fingerprint] = &model.DedupEntry{
			Fingerprint: fingerprint, FirstJobID: candidateJobID, LastJobID: candidateJobID,
			RepeatCount: 1, LastSeenAt: time.Now(),
		}
		return model.DedupDecision{RepeatCount: 1}, nil
	}
	e.RepeatCount++
	if e.RepeatCount >= threshold && e.LastJobID != "" {
		return model.DedupDecision{ReuseExisting: true, JobID: e.LastJobID, RepeatCount: e.RepeatCount}, nil
	}
	e.LastJobID = candidateJobID
	return model.DedupDecision{RepeatCount: e.RepeatCount}, nil
}

func (r *mbDedup) Find(ctx context.Context, fingerprint string) (*model.DedupEntry, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	e, ok := r.b.dedup[fingerprint]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *mbDedup) Put(ctx context.Context, e *model.DedupEntry) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	cp := *e
	r.b.dedup[e.Fingerprint] = &cp
	return nil
}

type mbRules struct{ b *memBackend }

func (r *mbRules) Save(ctx context.Context, rule *model.RuleConfig) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	cp := *rule
	r.b.rules[rule.MatterID] = &cp
	return nil
}

func (r *mbRules) FindByMatterID(ctx context.Context, matterID string) (*model.RuleConfig, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	rc, ok := r.b.rules[matterID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rc
	return &cp, nil
}

func (r *mbRules) ListByStatus(ctx context.Context, status model.RuleStatus) ([]*model.RuleConfig, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	return nil, nil
}

type mbOutbox struct{ b *memBackend }

func (r *mbOutbox) Append(ctx context.Context, ev *model.OutboxEvent) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	for _, e := range r.b.events {
		if e.IdempotencyKey == ev.IdempotencyKey {
			return domain.ErrAlreadyExists
		}
	}
	r.b.nextID++
	ev.ID = r.b.nextID
	cp := *ev
	cp.CreatedAt = time.Now()
	r.b.events = append(r.b.events, &cp)
	return nil
}

func (r *mbOutbox) ListUnapplied(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	if err := r.b.check(); err != nil {
		return nil, err
	}
	r.b.mu.Lock()
	var out []*model.OutboxEvent
	for _, e := range r.b.events {
		if !r.b.applied[e.ID] {
			cp := *e
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	var hook func()
	if len(out) == 0 && r.b.afterEmptyList != nil {
		hook = r.b.afterEmptyList
		r.b.afterEmptyList = nil
	}
	r.b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *mbOutbox) MarkApplied(ctx context.Context, id int64, at time.Time) error {
	if err := r.b.check(); err != nil {
		return err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	r.b.applied[id] = true
	return nil
}

func (r *mbOutbox) MarkFailed(ctx context.Context, id int64, lastError string) error {
	return r.b.check()
}

func (b *memBackend) unappliedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if !b.applied[e.ID] {
			n++
		}
	}
	return n
}
