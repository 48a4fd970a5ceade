package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLivenessTTL = 90 * time.Second

// LivenessTracker records client heartbeats in Redis with a TTL, so a user
// whose tab stops pinging simply ages out.
// Key format: liveness:<user_id> → unix timestamp of the last heartbeat.
type LivenessTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLivenessTracker creates a LivenessTracker. If ttl <= 0,
// defaultLivenessTTL is used.
func NewLivenessTracker(client *redis.Client, ttl time.Duration) *LivenessTracker {
	if ttl <= 0 {
		ttl = defaultLivenessTTL
	}
	return &LivenessTracker{client: client, ttl: ttl}
}

// Ping records a heartbeat for userID.
func (t *LivenessTracker) Ping(ctx context.Context, userID string) error {
	now := time.Now().UTC().Unix()
	if err := t.client.Set(ctx, livenessKey(userID), now, t.ttl).Err(); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// LastSeen returns the time of the most recent heartbeat within the TTL.
func (t *LivenessTracker) LastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	raw, err := t.client.Get(ctx, livenessKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("load heartbeat: %w", err)
	}

	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode heartbeat: %w", err)
	}
	return time.Unix(ts, 0).UTC(), true, nil
}

func livenessKey(userID string) string {
	return "liveness:" + userID
}
