package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

// signalDedup caches terminal task ids in redis so that repeated completion
// signals can be dropped without touching postgres. Misses and redis errors
// both fall through to the locked database path, which stays authoritative.
type signalDedup struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSignalDedup creates a redis-backed completion dedup cache.
func NewSignalDedup(client redis.UniversalClient, ttl time.Duration) outbound.CompletionDedupPort {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &signalDedup{client: client, ttl: ttl}
}

func dedupKey(userID uuid.UUID, feature, taskID string) string {
	return fmt.Sprintf("billing:task:%s:%s:%s:terminal", userID, feature, taskID)
}

func (d *signalDedup) Seen(ctx context.Context, userID uuid.UUID, feature, taskID string) (bool, error) {
	err := d.client.Get(ctx, dedupKey(userID, feature, taskID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *signalDedup) MarkTerminal(ctx context.Context, userID uuid.UUID, feature, taskID string) error {
	return d.client.Set(ctx, dedupKey(userID, feature, taskID), "1", d.ttl).Err()
}
