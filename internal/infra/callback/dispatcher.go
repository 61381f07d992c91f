package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

var _ adapter.CallbackScheduler = (*Dispatcher)(nil)

// maxResponseSample bounds how much of the third party's response body is
// persisted with the callback state.
const maxResponseSample = 512

// notification is the JSON body pushed to the third party's callback URL.
type notification struct {
	JobID         string `json:"job_id"`
	RequestID     string `json:"request_id,omitempty"`
	Status        string `json:"status"`
	Result        string `json:"result,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	ViewURL       string `json:"view_url,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	FinishedAt    string `json:"finished_at"`
}

// Dispatcher delivers job outcomes to callback URLs. Delivery state lives in
// the job record; the in-memory queue and in-flight set only exist to avoid
// double-sending within one process. Anything lost on restart is re-found by
// the due scanner.
type Dispatcher struct {
	store repository.Store

	client      *http.Client
	maxAttempts int
	backoff     []time.Duration
	workers     int

	mu       sync.Mutex
	inflight map[string]struct{}
	queue    chan string
	log      zerolog.Logger
}

func NewDispatcher(store repository.Store, maxAttempts int, timeout time.Duration, backoff []time.Duration, workers int, log zerolog.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if len(backoff) == 0 {
		backoff = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour, 3 * time.Hour}
	}
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		store:       store,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		backoff:     backoff,
		workers:     workers,
		inflight:    make(map[string]struct{}),
		queue:       make(chan string, 256),
		log:         log.With().Str("component", "callback-dispatcher").Logger(),
	}
}

// Run starts the delivery workers and blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info().Int("workers", d.workers).Msg("callback dispatcher started")
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case jobID := <-d.queue:
					d.deliver(ctx, jobID)
					d.release(jobID)
				}
			}
		}()
	}
	wg.Wait()
	d.log.Info().Msg("callback dispatcher stopped")
}

// Schedule snapshots the job's outcome as the pending payload, resets the
// attempt counter and queues a delivery. Used for fresh outcomes and for
// manual redelivery from the ops surface.
func (d *Dispatcher) Schedule(ctx context.Context, jobID string) error {
	job, err := d.store.Previews().FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Callback.URL == "" {
		return domain.ErrCallbackNotSet
	}

	body, err := json.Marshal(notification{
		JobID:         job.ID,
		RequestID:     job.ThirdPartyReqID,
		Status:        string(job.Status),
		Result:        job.Result,
		FileName:      job.FileName,
		ViewURL:       job.ViewURL,
		DownloadURL:   job.DownloadURL,
		FailureCode:   job.FailureCode,
		FailureReason: job.FailureReason,
		FinishedAt:    job.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	cb := job.Callback
	cb.Status = model.CallbackStatusScheduled
	cb.Attempts = 0
	cb.LastError = ""
	cb.NextRetryAfter = time.Time{}
	cb.PendingPayload = string(body)
	if err := d.store.Previews().UpdateCallback(ctx, job.ID, cb); err != nil {
		return err
	}

	d.enqueue(job.ID)
	return nil
}

// Redeliver queues a delivery attempt without touching the persisted state.
// The due scanner uses it to resume retries after restarts.
func (d *Dispatcher) Redeliver(_ context.Context, jobID string) error {
	d.enqueue(jobID)
	return nil
}

func (d *Dispatcher) enqueue(jobID string) {
	d.mu.Lock()
	if _, busy := d.inflight[jobID]; busy {
		d.mu.Unlock()
		return
	}
	d.inflight[jobID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.queue <- jobID:
	default:
		// Queue saturated; the scanner will find it again.
		d.release(jobID)
		d.log.Warn().Str("job_id", jobID).Msg("callback queue full, delivery deferred")
	}
}

func (d *Dispatcher) release(jobID string) {
	d.mu.Lock()
	delete(d.inflight, jobID)
	d.mu.Unlock()
}

func (d *Dispatcher) deliver(ctx context.Context, jobID string) {
	log := d.log.With().Str("job_id", jobID).Logger()

	job, err := d.store.Previews().FindByID(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Msg("callback job load failed")
		return
	}
	cb := job.Callback
	switch cb.Status {
	case model.CallbackStatusScheduled, model.CallbackStatusRetrying:
	default:
		return
	}
	if cb.URL == "" || cb.PendingPayload == "" {
		// A delivery queued without its URL or payload can never succeed;
		// fail it so the due scanner stops re-selecting the row.
		cb.Status = model.CallbackStatusFailed
		cb.LastError = domain.ErrCallbackNotSet.Error()
		cb.NextRetryAfter = time.Time{}
		metrics.IncCallbackAttempt("failed")
		log.Error().Msg("callback state incomplete, abandoned")
		if err := d.store.Previews().UpdateCallback(ctx, job.ID, cb); err != nil {
			log.Error().Err(err).Msg("callback state persist failed")
		}
		return
	}
	if !cb.NextRetryAfter.IsZero() && time.Now().Before(cb.NextRetryAfter) {
		return // not due yet, the scanner re-queues when it is
	}

	start := time.Now()
	sample, err := d.post(ctx, cb.URL, cb.PendingPayload)
	metrics.ObserveCallbackLatency(float64(time.Since(start).Milliseconds()))

	cb.Attempts++
	if err == nil {
		cb.Status = model.CallbackStatusSuccess
		cb.SuccessCount++
		cb.LastResponse = sample
		cb.LastError = ""
		cb.NextRetryAfter = time.Time{}
		cb.PendingPayload = ""
		metrics.IncCallbackAttempt("success")
		log.Info().Int("attempts", cb.Attempts).Msg("callback delivered")
	} else {
		cb.FailureCount++
		cb.LastError = err.Error()
		cb.LastResponse = sample
		if cb.Attempts >= d.maxAttempts {
			cb.Status = model.CallbackStatusFailed
			cb.NextRetryAfter = time.Time{}
			metrics.IncCallbackAttempt("failed")
			log.Error().Err(err).Int("attempts", cb.Attempts).Msg("callback abandoned")
		} else {
			cb.Status = model.CallbackStatusRetrying
			cb.NextRetryAfter = time.Now().Add(d.backoffFor(cb.Attempts))
			metrics.IncCallbackAttempt("retry")
			log.Warn().Err(err).Int("attempts", cb.Attempts).
				Time("next_retry_after", cb.NextRetryAfter).Msg("callback failed, will retry")
		}
	}

	if err := d.store.Previews().UpdateCallback(ctx, job.ID, cb); err != nil {
		log.Error().Err(err).Msg("callback state persist failed")
	}
}

// post sends the payload and returns a truncated response-body sample. Any
// non-2xx status is a failure.
func (d *Dispatcher) post(ctx context.Context, url, payload string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSample))
	sample := string(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return sample, fmt.Errorf("callback endpoint returned %d", resp.StatusCode)
	}
	return sample, nil
}

// backoffFor returns the wait before the next attempt; attempts beyond the
// table reuse its last entry.
func (d *Dispatcher) backoffFor(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(d.backoff) {
		idx = len(d.backoff) - 1
	}
	return d.backoff[idx]
}
