package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayTTL = time.Hour

// ReplayGuard rejects identity tokens that were already exchanged for a
// session. Tokens are short-lived, so entries only need to outlive the
// token itself. Key format: token:used:<sha256(token)>
type ReplayGuard struct {
	client *redis.Client
}

// NewReplayGuard creates a ReplayGuard wrapping the given Redis client.
func NewReplayGuard(client *redis.Client) *ReplayGuard {
	return &ReplayGuard{client: client}
}

// Used reports whether this token has already been exchanged.
func (g *ReplayGuard) Used(ctx context.Context, idToken string) (bool, error) {
	n, err := g.client.Exists(ctx, g.key(idToken)).Result()
	if err != nil {
		return false, fmt.Errorf("replay check: %w", err)
	}
	return n > 0, nil
}

// Mark records that this token has been exchanged (expires after replayTTL).
func (g *ReplayGuard) Mark(ctx context.Context, idToken string) error {
	return g.client.Set(ctx, g.key(idToken), "1", replayTTL).Err()
}

func (g *ReplayGuard) key(idToken string) string {
	sum := sha256.Sum256([]byte(idToken))
	return "token:used:" + hex.EncodeToString(sum[:])
}
