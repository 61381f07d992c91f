package usecase

import (
	"context"

	"github.com/tomshen124/ocr-server/internal/domain/model"
	"github.com/tomshen124/ocr-server/internal/domain/ports/repository"
)

// SlotReporter exposes the admission controller's occupancy for the status
// surface without the use case depending on its implementation.
type SlotReporter interface {
	Capacity() int64
	Available() int64
}

// QueueLoad is a point-in-time load snapshot for operators.
type QueueLoad struct {
	Capacity        int64 `json:"capacity"`
	SlotsAvailable  int64 `json:"slots_available"`
	QueuedCount     int   `json:"queued_count"`
	ProcessingCount int   `json:"processing_count"`
}

// StatusUseCase answers read-only queries about jobs, requests and load.
type StatusUseCase struct {
	store repository.Store
	slots SlotReporter
}

func NewStatusUseCase(store repository.Store, slots SlotReporter) *StatusUseCase {
	return &StatusUseCase{store: store, slots: slots}
}

// Job returns the record for a server-issued job id.
func (uc *StatusUseCase) Job(ctx context.Context, jobID string) (*model.PreviewJob, error) {
	return uc.store.Previews().FindByID(ctx, jobID)
}

// Request resolves a third-party request id to its latest job.
func (uc *StatusUseCase) Request(ctx context.Context, requestID string) (*model.JobRequest, *model.PreviewJob, error) {
	req, err := uc.store.Requests().FindByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	job, err := uc.store.Previews().FindByID(ctx, req.LatestJobID)
	if err != nil {
		return req, nil, err
	}
	return req, job, nil
}

const loadScanLimit = 1000

// Load reports queue depth and slot occupancy. Counts are capped at the scan
// limit; beyond that the exact number stops being interesting.
func (uc *StatusUseCase) Load(ctx context.Context) (*QueueLoad, error) {
	queued, err := uc.store.Previews().ListByStatus(ctx, model.PreviewStatusQueued, loadScanLimit)
	if err != nil {
		return nil, err
	}
	processing, err := uc.store.Previews().ListByStatus(ctx, model.PreviewStatusProcessing, loadScanLimit)
	if err != nil {
		return nil, err
	}
	return &QueueLoad{
		Capacity:        uc.slots.Capacity(),
		SlotsAvailable:  uc.slots.Available(),
		QueuedCount:     len(queued),
		ProcessingCount: len(processing),
	}, nil
}
