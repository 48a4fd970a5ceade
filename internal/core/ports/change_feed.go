package ports

import (
	"context"
	"time"
)

// ProfileEvent is delivered on a profile update. Consumers only inspect
// LastForceLogoutAt; other profile fields are not carried on the feed.
type ProfileEvent struct {
	UserID            string     `json:"user_id"`
	LastForceLogoutAt *time.Time `json:"last_force_logout_at,omitempty"`
}

// FeedSubscription is a live per-user subscription to profile updates.
// Events is closed after Close returns.
type FeedSubscription interface {
	Events() <-chan ProfileEvent
	Close() error
}

// ChangeFeed publishes and delivers profile update events keyed by user id.
type ChangeFeed interface {
	Subscribe(ctx context.Context, userID string) (FeedSubscription, error)
	Publish(ctx context.Context, event ProfileEvent) error
}
