package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/tomshen124/ocr-server/internal/domain"
	"github.com/tomshen124/ocr-server/internal/domain/model"
)

type fakeSlots struct{ capacity, available int64 }

func (f fakeSlots) Capacity() int64  { return f.capacity }
func (f fakeSlots) Available() int64 { return f.available }

func TestStatusByRequestID(t *testing.T) {
	store := newMemStore()
	uc := NewStatusUseCase(store, fakeSlots{12, 12})
	ctx := context.Background()

	job := model.NewPreviewJob("u1", "m1", "req-9")
	job.Status = model.PreviewStatusCompleted
	if err := store.Previews().Save(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := store.Requests().Save(ctx, &model.JobRequest{
		RequestID: "req-9", LatestJobID: job.ID, LatestStatus: job.Status,
	}); err != nil {
		t.Fatal(err)
	}

	req, got, err := uc.Request(ctx, "req-9")
	if err != nil {
		t.Fatalf("request lookup: %v", err)
	}
	if req.RequestID != "req-9" || got.ID != job.ID {
		t.Fatalf("wrong resolution: %+v -> %+v", req, got)
	}

	if _, _, err := uc.Request(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing request: got %v, want ErrNotFound", err)
	}
}

func TestStatusLoadReport(t *testing.T) {
	store := newMemStore()
	uc := NewStatusUseCase(store, fakeSlots{capacity: 12, available: 7})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		j := model.NewPreviewJob("u1", "m1", "")
		j.Status = model.PreviewStatusQueued
		if err := store.Previews().Save(ctx, j); err != nil {
			t.Fatal(err)
		}
	}
	p := model.NewPreviewJob("u1", "m1", "")
	p.Status = model.PreviewStatusProcessing
	if err := store.Previews().Save(ctx, p); err != nil {
		t.Fatal(err)
	}

	load, err := uc.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if load.Capacity != 12 || load.SlotsAvailable != 7 {
		t.Fatalf("slots = %d/%d, want 7/12", load.SlotsAvailable, load.Capacity)
	}
	if load.QueuedCount != 3 || load.ProcessingCount != 1 {
		t.Fatalf("counts = %d queued / %d processing, want 3/1", load.QueuedCount, load.ProcessingCount)
	}
}
