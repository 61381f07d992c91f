package adapter

import "context"

// CallbackScheduler accepts a job whose outcome should be pushed to the
// third party's callback URL. Scheduling resets the attempt counter; delivery
// and retries are the dispatcher's business.
type CallbackScheduler interface {
	Schedule(ctx context.Context, jobID string) error
}
