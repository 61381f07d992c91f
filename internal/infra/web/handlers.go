package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/usecase"
)

type submitRequest struct {
	UserID      string          `json:"user_id"`
	MatterID    string          `json:"matter_id"`
	RequestID   string          `json:"request_id,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty"`
	FileName    string          `json:"file_name,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

type submitResponse struct {
	JobID       string `json:"job_id"`
	Reused      bool   `json:"reused"`
	RepeatCount int    `json:"repeat_count,omitempty"`
}

type jobResponse struct {
	JobID         string `json:"job_id"`
	RequestID     string `json:"request_id,omitempty"`
	UserID        string `json:"user_id"`
	MatterID      string `json:"matter_id"`
	Status        string `json:"status"`
	RetryCount    int    `json:"retry_count"`
	Result        string `json:"result,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	ViewURL       string `json:"view_url,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	CallbackStatus   string `json:"callback_status,omitempty"`
	CallbackAttempts int    `json:"callback_attempts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toJobResponse(job *model.PreviewJob) jobResponse {
	return jobResponse{
		JobID:            job.ID,
		RequestID:        job.ThirdPartyReqID,
		UserID:           job.UserID,
		MatterID:         job.MatterID,
		Status:           string(job.Status),
		RetryCount:       job.RetryCount,
		Result:           job.Result,
		FileName:         job.FileName,
		ViewURL:          job.ViewURL,
		DownloadURL:      job.DownloadURL,
		FailureCode:      job.FailureCode,
		FailureReason:    job.FailureReason,
		CallbackStatus:   string(job.Callback.Status),
		CallbackAttempts: job.Callback.Attempts,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.submitUC.Submit(r.Context(), usecase.SubmitInput{
		UserID:          req.UserID,
		MatterID:        req.MatterID,
		ThirdPartyReqID: req.RequestID,
		CallbackURL:     req.CallbackURL,
		FileName:        req.FileName,
		Payload:         req.Payload,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if res.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, submitResponse{JobID: res.JobID, Reused: res.Reused, RepeatCount: res.RepeatCount})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.statusUC.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	req, job, err := s.statusUC.Request(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := toJobResponse(job)
	resp.RequestID = req.RequestID
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	load, err := s.statusUC.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"storage": s.storageState(),
		"load":    load,
	})
}

// handleCallbackRetry re-schedules a delivery for a finished job, for manual
// repair after a third party outage.
func (s *Server) handleCallbackRetry(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.callbacks.Schedule(r.Context(), jobID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "callback": "scheduled"})
}

func (s *Server) handleRuleInvalidate(w http.ResponseWriter, r *http.Request) {
	matterID := chi.URLParam(r, "matterID")
	var err error
	if matterID == "all" {
		err = s.ruleCache.InvalidateAll(r.Context())
	} else {
		err = s.ruleCache.Invalidate(r.Context(), matterID)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"matter_id": matterID, "cache": "invalidated"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrPayloadMissing),
		errors.Is(err, domain.ErrCallbackNotSet):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrShuttingDown):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
