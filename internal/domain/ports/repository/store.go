package repository

import "context"

// Store is the narrow storage facade every component depends on. The failover
// controller implements it by routing each call to the active backend.
type Store interface {
	Previews() PreviewRepository
	Requests() JobRequestRepository
	Tasks() TaskRepository
	Results() ResultRepository
	Dedup() DedupRepository
	Rules() RuleRepository
}

// Backend is one concrete storage implementation (postgres primary or the
// embedded sqlite fallback). Both are always compiled; selection and
// switching happen at runtime.
type Backend interface {
	Store
	Name() string
	Ping(ctx context.Context) error
	Outbox() OutboxRepository
	Close()
}
