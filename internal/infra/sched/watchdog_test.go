package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

type memPreviews struct {
	mu   sync.Mutex
	jobs map[string]*model.PreviewJob
}

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
	return out, nil
}

func (m *memPreviews) MarkProcessing(ctx context.Context, jobID, workerID, attemptID string) (*model.PreviewJob, error) {
	return nil, domain.ErrNotFound
}

func (m *memPreviews) UpdateCallback(ctx context.Context, jobID string, cb model.CallbackState) error {
	return nil
}

func (m *memPreviews) ListCallbacksDue(ctx context.Context, now time.Time, limit int) ([]*model.PreviewJob, error) {
	return nil, nil
}

type stubTasks struct{ missing bool }

func (s stubTasks) Save(ctx context.Context, task *model.TaskPayload) error { return nil }
func (s stubTasks) FindByJobID(ctx context.Context, jobID string) (*model.TaskPayload, error) {
	if s.missing {
		return nil, domain.ErrNotFound
	}
	return &model.TaskPayload{JobID: jobID, Payload: []byte("{}")}, nil
}
func (s stubTasks) Delete(ctx context.Context, jobID string) error { return nil }

type stubStore struct {
	previews repository.PreviewRepository
	tasks    repository.TaskRepository
}

func (s *stubStore) Previews() repository.PreviewRepository    { return s.previews }
func (s *stubStore) Requests() repository.JobRequestRepository { return nil }
func (s *stubStore) Tasks() repository.TaskRepository          { return s.tasks }
func (s *stubStore) Results() repository.ResultRepository      { return nil }
func (s *stubStore) Dedup() repository.DedupRepository         { return nil }
func (s *stubStore) Rules() repository.RuleRepository          { return nil }

// stubBeats maps worker ids to seconds since their last beat.
type stubBeats struct{ seconds map[string]float64 }

func (s stubBeats) GetHeartbeatInfo(ctx context.Context, workerID string) (*adapter.HeartbeatInfo, error) {
	sec, ok := s.seconds[workerID]
	if !ok {
		return nil, nil
	}
	return &adapter.HeartbeatInfo{SecondsSinceLastBeat: sec}, nil
}

type mockApplier struct {
	mu      sync.Mutex
	applied []*model.ResultPayload
}

func (m *mockApplier) Apply(ctx context.Context, rp *model.ResultPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rp
	m.applied = append(m.applied, &cp)
	return nil
}

func newWatchdogFixture(beats stubBeats, tasks repository.TaskRepository, maxRetries int) (*Watchdog, *memPreviews, *mockApplier) {
	previews := &memPreviews{jobs: map[string]*model.PreviewJob{}}
	applier := &mockApplier{}
	store := &stubStore{previews: previews, tasks: tasks}
	w := NewWatchdog(store, beats, applier,
		time.Minute, 10*time.Minute, maxRetries, 30*time.Second, 100, zerolog.Nop())
	return w, previews, applier
}

func processingJob(started time.Time, workerID string, retries int) *model.PreviewJob {
	job := model.NewPreviewJob("u1", "m1", "")
	job.Status = model.PreviewStatusProcessing
	job.ProcessingAt = started
	job.LastWorkerID = workerID
	job.RetryCount = retries
	return job
}

func TestWatchdogIgnoresFreshJobs(t *testing.T) {
	w, previews, applier := newWatchdogFixture(stubBeats{}, stubTasks{}, 3)
	job := processingJob(time.Now().Add(-time.Minute), "w1", 1)
	_ = previews.Save(context.Background(), job)

	if err := w.sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := previews.FindByID(context.Background(), job.ID)
	if got.Status != model.PreviewStatusProcessing || len(applier.applied) != 0 {
		t.Fatalf("fresh job touched: %+v", got)
	}
}

func TestWatchdogSparesSlowButAliveWorker(t *testing.T) {
	beats := stubBeats{seconds: map[string]float64{"w1": 5}}
	w, previews, applier := newWatchdogFixture(beats, stubTasks{}, 3)
	job := processingJob(time.Now().Add(-time.Hour), "w1", 1)
	_ = previews.Save(context.Background(), job)

	if err := w.sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := previews.FindByID(context.Background(), job.ID)
	if got.Status != model.PreviewStatusProcessing || len(applier.applied) != 0 {
		t.Fatalf("live worker's job was rescued: %+v", got)
	}
}

func TestWatchdogRequeuesAbandonedJob(t *testing.T) {
	// Stale heartbeat: well past the 30s grace.
	beats := stubBeats{seconds: map[string]float64{"w1": 600}}
	w, previews, applier := newWatchdogFixture(beats, stubTasks{}, 3)
	job := processingJob(time.Now().Add(-time.Hour), "w1", 1)
	_ = previews.Save(context.Background(), job)

	if err := w.sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := previews.FindByID(context.Background(), job.ID)
	if got.Status != model.PreviewStatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("requeue must not spend the budget itself, retry_count = %d", got.RetryCount)
	}
	if len(applier.applied) != 0 {
		t.Fatalf("job under budget must not be finalized")
	}
}

func TestWatchdogFailsJobOverRetryBudget(t *testing.T) {
	w, previews, applier := newWatchdogFixture(stubBeats{}, stubTasks{}, 3)
	job := processingJob(time.Now().Add(-time.Hour), "w1", 3)
	_ = previews.Save(context.Background(), job)

	if err := w.sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(applier.applied) != 1 {
		t.Fatalf("exhausted job must be finalized, applied=%d", len(applier.applied))
	}
	rp := applier.applied[0]
	if rp.JobID != job.ID || rp.ErrorCode != "retries_exhausted" {
		t.Fatalf("wrong failure payload: %+v", rp)
	}
}

func TestWatchdogFailsJobWithoutPayload(t *testing.T) {
	w, previews, applier := newWatchdogFixture(stubBeats{}, stubTasks{missing: true}, 3)
	job := processingJob(time.Now().Add(-time.Hour), "w1", 1)
	_ = previews.Save(context.Background(), job)

	if err := w.sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(applier.applied) != 1 || applier.applied[0].ErrorCode != "payload_missing" {
		t.Fatalf("payload-less job must fail: %+v", applier.applied)
	}
}

// A worker with no heartbeat record at all counts as dead.
func TestWatchdogTreatsUnknownWorkerAsDead(t *testing.T) {
	w, previews, _ := newWatchdogFixture(stubBeats{}, stubTasks{}, 3)
	job := processingJob(time.Now().Add(-time.Hour), "ghost", 0)
	_ = previews.Save(context.Background(), job)

	if err := w.sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := previews.FindByID(context.Background(), job.ID)
	if got.Status != model.PreviewStatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
}
