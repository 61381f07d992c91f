package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
)

var _ adapter.HeartbeatProvider = (*HeartbeatStore)(nil)

// HeartbeatStore records worker liveness in redis. Workers beat while they
// own a job; the watchdog reads the beats to avoid requeueing a job whose
// worker is merely slow.
type HeartbeatStore struct {
	cache RedisClient
	ttl   time.Duration
}

func NewHeartbeatStore(cache RedisClient, ttl time.Duration) *HeartbeatStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &HeartbeatStore{cache: cache, ttl: ttl}
}

func heartbeatKey(workerID string) string {
	return fmt.Sprintf("worker:heartbeat:%s", workerID)
}

// Beat stamps the worker as alive now.
func (h *HeartbeatStore) Beat(ctx context.Context, workerID string) error {
	return h.cache.Set(ctx, heartbeatKey(workerID), time.Now().UnixNano(), h.ttl)
}

func (h *HeartbeatStore) GetHeartbeatInfo(ctx context.Context, workerID string) (*adapter.HeartbeatInfo, error) {
	val, err := h.cache.Get(ctx, heartbeatKey(workerID))
	if err != nil {
		if errors.Is(err, Nil) {
			return nil, nil
		}
		return nil, err
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, nil
	}
	since := time.Since(time.Unix(0, nanos))
	return &adapter.HeartbeatInfo{SecondsSinceLastBeat: since.Seconds()}, nil
}
