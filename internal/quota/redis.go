package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL keeps yesterday's counters around briefly for inspection while
// guaranteeing keys expire on their own.
const counterTTL = 48 * time.Hour

// RedisTracker counts usage in redis, one key per (agent, user, UTC day).
type RedisTracker struct {
	client *redis.Client
	limit  int64
	now    func() time.Time
}

// NewRedisTracker creates a tracker enforcing the given daily limit.
// limit <= 0 means unlimited.
func NewRedisTracker(client *redis.Client, limit int64) *RedisTracker {
	return &RedisTracker{client: client, limit: limit, now: time.Now}
}

func (t *RedisTracker) Allow(ctx context.Context, userID, agentID string) (bool, error) {
	if t.limit <= 0 {
		return true, nil
	}
	key := dayKey(userID, agentID, t.now())
	count, err := t.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("quota lookup: %w", err)
	}
	return count < t.limit, nil
}

func (t *RedisTracker) Record(ctx context.Context, userID, agentID string) error {
	key := dayKey(userID, agentID, t.now())
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("quota record: %w", err)
	}
	return nil
}
