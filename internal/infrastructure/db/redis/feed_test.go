package redis

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/core/ports"
)

func TestChangeFeed_PublishDelivered(t *testing.T) {
	feed := NewChangeFeed(newTestClient(t), zerolog.Nop())
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	at := time.Now().UTC().Truncate(time.Second)
	if err := feed.Publish(ctx, ports.ProfileEvent{UserID: "u1", LastForceLogoutAt: &at}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-sub.Events():
		if event.UserID != "u1" {
			t.Fatalf("unexpected user: %s", event.UserID)
		}
		if event.LastForceLogoutAt == nil || !event.LastForceLogoutAt.Equal(at) {
			t.Fatalf("unexpected timestamp: %v", event.LastForceLogoutAt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestChangeFeed_SubscriptionIsPerUser(t *testing.T) {
	feed := NewChangeFeed(newTestClient(t), zerolog.Nop())
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	if err := feed.Publish(ctx, ports.ProfileEvent{UserID: "u2"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-sub.Events():
		t.Fatalf("received another user's event: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChangeFeed_CloseEndsEventStream(t *testing.T) {
	feed := NewChangeFeed(newTestClient(t), zerolog.Nop())

	sub, err := feed.Subscribe(context.Background(), "u1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	select {
	case _, open := <-sub.Events():
		if open {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event channel not closed")
	}
}
