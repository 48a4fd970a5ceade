package ports

import "context"

// TokenReplayGuard remembers identity tokens that were already exchanged for
// a session, so a captured token cannot be replayed into a second one.
type TokenReplayGuard interface {
	Used(ctx context.Context, idToken string) (bool, error)
	Mark(ctx context.Context, idToken string) error
}
