package worker

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/tomshen124/ocr-server/internal/infra/metrics"
)

// Admission bounds the number of jobs processed concurrently. A slot must be
// held for the whole lifetime of an attempt; releasing twice is a
// programming error the semaphore will panic on.
type Admission struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

func NewAdmission(capacity int64) *Admission {
	if capacity <= 0 {
		capacity = 1
	}
	a := &Admission{sem: semaphore.NewWeighted(capacity), capacity: capacity}
	metrics.SetAdmissionSlots(capacity, capacity)
	return a
}

// TryAcquire grabs a slot without blocking. The returned release function is
// nil when no slot is free.
func (a *Admission) TryAcquire() (func(), bool) {
	if !a.sem.TryAcquire(1) {
		return nil, false
	}
	return a.grant(), true
}

// Acquire blocks until a slot frees up or ctx is done.
func (a *Admission) Acquire(ctx context.Context) (func(), error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return a.grant(), nil
}

func (a *Admission) grant() func() {
	in := a.inUse.Add(1)
	metrics.SetAdmissionSlots(a.capacity, a.capacity-in)
	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		a.sem.Release(1)
		in := a.inUse.Add(-1)
		metrics.SetAdmissionSlots(a.capacity, a.capacity-in)
	}
}

func (a *Admission) Capacity() int64 { return a.capacity }

// Available reports free slots, for the status endpoint.
func (a *Admission) Available() int64 { return a.capacity - a.inUse.Load() }
