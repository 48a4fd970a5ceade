package ports

import (
	"context"
	"time"
)

// LivenessTracker records periodic heartbeats from authenticated clients.
type LivenessTracker interface {
	Ping(ctx context.Context, userID string) error
	LastSeen(ctx context.Context, userID string) (time.Time, bool, error)
}
