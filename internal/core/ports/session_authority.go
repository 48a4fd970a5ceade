package ports

import (
	"context"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

// SessionAuthority is the source of truth for which session, if any, is
// currently allowed for a user.
type SessionAuthority interface {
	// Create issues a new session for userID. While a prior session is
	// inside the grace window and force is false it returns a
	// *domain.SessionConflictError without mutating state; force replaces
	// the prior session unconditionally.
	Create(ctx context.Context, userID string, force bool) (*domain.Session, error)
	Verify(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}
