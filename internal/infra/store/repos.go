package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

// Per-repository failover wrappers. Reads route to the active backend; writes
// additionally journal an outbox event when they land on the fallback.

func (c *Controller) Previews() repository.PreviewRepository    { return &fPreviews{c} }
func (c *Controller) Requests() repository.JobRequestRepository { return &fRequests{c} }
func (c *Controller) Tasks() repository.TaskRepository          { return &fTasks{c} }
func (c *Controller) Results() repository.ResultRepository      { return &fResults{c} }
func (c *Controller) Dedup() repository.DedupRepository         { return &fDedup{c} }
func (c *Controller) Rules() repository.RuleRepository          { return &fRules{c} }

func saveEntry(table, pk string, v any, seq time.Time) *journalEntry {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return &journalEntry{table: table, op: "save", pk: pk, payload: b, seq: seq.UnixNano()}
}

func deleteEntry(table, pk string) *journalEntry {
	return &journalEntry{table: table, op: "delete", pk: pk, payload: []byte("{}"), seq: time.Now().UnixNano()}
}

// ---- previews ----

type fPreviews struct{ c *Controller }

func (r *fPreviews) Save(ctx context.Context, job *model.PreviewJob) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Previews().Save(ctx, job)
	}, func() *journalEntry {
		return saveEntry("preview_jobs", job.ID, job, job.UpdatedAt)
	})
}

func (r *fPreviews) FindByID(ctx context.Context, id string) (*model.PreviewJob, error) {
	var out *model.PreviewJob
	err := r.c.do(ctx, func(b repository.Backend) error {
		j, err := b.Previews().FindByID(ctx, id)
		out = j
		return err
	}, nil)
	return out, err
}

func (r *fPreviews) ListByStatus(ctx context.Context, status model.PreviewStatus, limit int) ([]*model.PreviewJob, error) {
	var out []*model.PreviewJob
	err := r.c.do(ctx, func(b repository.Backend) error {
		js, err := b.Previews().ListByStatus(ctx, status, limit)
		out = js
		return err
	}, nil)
	return out, err
}

func (r *fPreviews) MarkProcessing(ctx context.Context, jobID, workerID, attemptID string) (*model.PreviewJob, error) {
	var out *model.PreviewJob
	err := r.c.do(ctx, func(b repository.Backend) error {
		j, err := b.Previews().MarkProcessing(ctx, jobID, workerID, attemptID)
		out = j
		return err
	}, func() *journalEntry {
		if out == nil {
			return nil
		}
		return saveEntry("preview_jobs", out.ID, out, out.UpdatedAt)
	})
	return out, err
}

func (r *fPreviews) UpdateCallback(ctx context.Context, jobID string, cb model.CallbackState) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Previews().UpdateCallback(ctx, jobID, cb)
	}, func() *journalEntry {
		// Journal the whole record so replay is a plain upsert.
		j, err := r.c.fallback.Previews().FindByID(ctx, jobID)
		if err != nil {
			return nil
		}
		return saveEntry("preview_jobs", jobID, j, j.UpdatedAt)
	})
}

func (r *fPreviews) ListCallbacksDue(ctx context.Context, now time.Time, limit int) ([]*model.PreviewJob, error) {
	var out []*model.PreviewJob
	err := r.c.do(ctx, func(b repository.Backend) error {
		js, err := b.Previews().ListCallbacksDue(ctx, now, limit)
		out = js
		return err
	}, nil)
	return out, err
}

// ---- job requests ----

type fRequests struct{ c *Controller }

func (r *fRequests) Save(ctx context.Context, req *model.JobRequest) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Requests().Save(ctx, req)
	}, func() *journalEntry {
		return saveEntry("job_requests", req.RequestID, req, req.UpdatedAt)
	})
}

func (r *fRequests) FindByID(ctx context.Context, requestID string) (*model.JobRequest, error) {
	var out *model.JobRequest
	err := r.c.do(ctx, func(b repository.Backend) error {
		req, err := b.Requests().FindByID(ctx, requestID)
		out = req
		return err
	}, nil)
	return out, err
}

// ---- task payloads ----

type fTasks struct{ c *Controller }

func (r *fTasks) Save(ctx context.Context, task *model.TaskPayload) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Tasks().Save(ctx, task)
	}, func() *journalEntry {
		return saveEntry("task_payloads", task.JobID, task, task.CreatedAt)
	})
}

func (r *fTasks) FindByJobID(ctx context.Context, jobID string) (*model.TaskPayload, error) {
	var out *model.TaskPayload
	err := r.c.do(ctx, func(b repository.Backend) error {
		t, err := b.Tasks().FindByJobID(ctx, jobID)
		out = t
		return err
	}, nil)
	return out, err
}

func (r *fTasks) Delete(ctx context.Context, jobID string) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Tasks().Delete(ctx, jobID)
	}, func() *journalEntry {
		return deleteEntry("task_payloads", jobID)
	})
}

// ---- worker results ----

type fResults struct{ c *Controller }

func (r *fResults) Enqueue(ctx context.Context, result *model.WorkerResult) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Results().Enqueue(ctx, result)
	}, func() *journalEntry {
		return saveEntry("worker_results", result.JobID, result, result.UpdatedAt)
	})
}

func (r *fResults) FetchPending(ctx context.Context, limit int) ([]*model.WorkerResult, error) {
	var out []*model.WorkerResult
	err := r.c.do(ctx, func(b repository.Backend) error {
		rs, err := b.Results().FetchPending(ctx, limit)
		out = rs
		return err
	}, nil)
	return out, err
}

func (r *fResults) MarkDone(ctx context.Context, id string, status model.WorkerResultStatus, lastError string) error {
	// Not journaled: queue-entry bookkeeping is transient, and the terminal
	// job state it reflects is journaled via the preview record save.
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Results().MarkDone(ctx, id, status, lastError)
	}, nil)
}

func (r *fResults) Delete(ctx context.Context, id string) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Results().Delete(ctx, id)
	}, func() *journalEntry {
		return deleteEntry("worker_results", id)
	})
}

// ---- dedup ----

type fDedup struct{ c *Controller }

func (r *fDedup) CheckAndUpdate(ctx context.Context, fingerprint, candidateJobID string, threshold int) (model.DedupDecision, error) {
	var out model.DedupDecision
	err := r.c.do(ctx, func(b repository.Backend) error {
		d, err := b.Dedup().CheckAndUpdate(ctx, fingerprint, candidateJobID, threshold)
		out = d
		return err
	}, func() *journalEntry {
		e, err := r.c.fallback.Dedup().Find(ctx, fingerprint)
		if err != nil {
			return nil
		}
		return saveEntry("dedup_entries", fingerprint, e, e.LastSeenAt)
	})
	return out, err
}

func (r *fDedup) Find(ctx context.Context, fingerprint string) (*model.DedupEntry, error) {
	var out *model.DedupEntry
	err := r.c.do(ctx, func(b repository.Backend) error {
		e, err := b.Dedup().Find(ctx, fingerprint)
		out = e
		return err
	}, nil)
	return out, err
}

func (r *fDedup) Put(ctx context.Context, e *model.DedupEntry) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Dedup().Put(ctx, e)
	}, func() *journalEntry {
		return saveEntry("dedup_entries", e.Fingerprint, e, e.LastSeenAt)
	})
}

// ---- rules ----

type fRules struct{ c *Controller }

func (r *fRules) Save(ctx context.Context, rule *model.RuleConfig) error {
	return r.c.do(ctx, func(b repository.Backend) error {
		return b.Rules().Save(ctx, rule)
	}, func() *journalEntry {
		return saveEntry("rule_configs", rule.MatterID, rule, rule.UpdatedAt)
	})
}

func (r *fRules) FindByMatterID(ctx context.Context, matterID string) (*model.RuleConfig, error) {
	var out *model.RuleConfig
	err := r.c.do(ctx, func(b repository.Backend) error {
		rc, err := b.Rules().FindByMatterID(ctx, matterID)
		out = rc
		return err
	}, nil)
	return out, err
}

func (r *fRules) ListByStatus(ctx context.Context, status model.RuleStatus) ([]*model.RuleConfig, error) {
	var out []*model.RuleConfig
	err := r.c.do(ctx, func(b repository.Backend) error {
		rcs, err := b.Rules().ListByStatus(ctx, status)
		out = rcs
		return err
	}, nil)
	return out, err
}
