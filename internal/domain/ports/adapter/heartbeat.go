package adapter

import "context"

// HeartbeatInfo reports how long ago a worker last beat.
type HeartbeatInfo struct {
	SecondsSinceLastBeat float64
}

// HeartbeatWriter is the worker side: beat while owning a job.
type HeartbeatWriter interface {
	Beat(ctx context.Context, workerID string) error
}

// HeartbeatProvider is consumed only by the watchdog: a live heartbeat within
// the grace period overrides the processing timeout.
type HeartbeatProvider interface {
	// GetHeartbeatInfo returns nil when no heartbeat is known for the worker.
	GetHeartbeatInfo(ctx context.Context, workerID string) (*HeartbeatInfo, error)
}
