package ports

import (
	"context"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

// SessionRepository defines the interface for session record persistence.
// Store replaces whatever record previously existed for the session's user.
type SessionRepository interface {
	Store(ctx context.Context, session *domain.Session) error
	FindByID(ctx context.Context, sessionID string) (*domain.Session, error)
	FindByUser(ctx context.Context, userID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}
