package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
)

var _ adapter.ReviewEngine = (*HTTPEngine)(nil)

// evaluateRequest is the body posted to the external review engine.
type evaluateRequest struct {
	JobID    string          `json:"job_id"`
	UserID   string          `json:"user_id"`
	MatterID string          `json:"matter_id"`
	FileName string          `json:"file_name,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	Rule     *ruleSpec       `json:"rule,omitempty"`
}

type ruleSpec struct {
	MatterID   string `json:"matter_id"`
	Name       string `json:"name,omitempty"`
	Definition string `json:"definition"`
}

// HTTPEngine calls an external OCR/evaluation service synchronously. Slow or
// flaky engines are handled above this layer: the caller owns the retry
// budget, this adapter just reports errors.
type HTTPEngine struct {
	url    string
	client *http.Client
}

func NewHTTPEngine(url string, timeout time.Duration) (*HTTPEngine, error) {
	if url == "" {
		return nil, errors.New("engine: empty url")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPEngine{url: url, client: &http.Client{Timeout: timeout}}, nil
}

func (e *HTTPEngine) Evaluate(ctx context.Context, job *model.PreviewJob, task *model.TaskPayload, rule *model.RuleConfig) (*model.ResultPayload, error) {
	req := evaluateRequest{
		JobID:    job.ID,
		UserID:   job.UserID,
		MatterID: job.MatterID,
		FileName: job.FileName,
		Payload:  task.Payload,
	}
	if rule != nil {
		req.Rule = &ruleSpec{MatterID: rule.MatterID, Name: rule.Name, Definition: rule.Definition}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, raw)
	}

	var rp model.ResultPayload
	if err := json.NewDecoder(resp.Body).Decode(&rp); err != nil {
		return nil, fmt.Errorf("engine response decode: %w", err)
	}
	rp.JobID = job.ID
	return &rp, nil
}
