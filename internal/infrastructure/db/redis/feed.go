package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/core/ports"
)

const feedBuffer = 16

// ChangeFeed delivers profile update events over Redis pub/sub, one channel
// per user. Each browser tab holds its own subscription; there is no
// cross-tab coordination beyond every tab seeing the same published event.
type ChangeFeed struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewChangeFeed creates a ChangeFeed wrapping the given Redis client.
func NewChangeFeed(client *redis.Client, log zerolog.Logger) *ChangeFeed {
	return &ChangeFeed{client: client, log: log}
}

// Publish emits a profile update on the user's channel. Subscriberless
// publishes are fine; the event is simply dropped.
func (f *ChangeFeed) Publish(ctx context.Context, event ports.ProfileEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal profile event: %w", err)
	}
	if err := f.client.Publish(ctx, feedChannel(event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish profile event: %w", err)
	}
	return nil
}

// Subscribe opens a per-user subscription. The returned subscription must be
// closed by the caller; its event channel closes once the underlying pub/sub
// connection is torn down.
func (f *ChangeFeed) Subscribe(ctx context.Context, userID string) (ports.FeedSubscription, error) {
	pubsub := f.client.Subscribe(ctx, feedChannel(userID))

	// Force the subscribe round-trip so a broken connection surfaces here
	// instead of as a silently dead channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe profile feed: %w", err)
	}

	sub := &feedSubscription{
		pubsub: pubsub,
		events: make(chan ports.ProfileEvent, feedBuffer),
	}
	go sub.run(f.log.With().Str("user_id", userID).Logger())
	return sub, nil
}

type feedSubscription struct {
	pubsub *redis.PubSub
	events chan ports.ProfileEvent
}

func (s *feedSubscription) Events() <-chan ports.ProfileEvent {
	return s.events
}

func (s *feedSubscription) Close() error {
	return s.pubsub.Close()
}

func (s *feedSubscription) run(log zerolog.Logger) {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var event ports.ProfileEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn().Err(err).Msg("malformed profile event dropped")
			continue
		}
		select {
		case s.events <- event:
		default:
			log.Warn().Msg("profile event dropped, subscriber not draining")
		}
	}
}

func feedChannel(userID string) string {
	return "profile:updates:" + userID
}
