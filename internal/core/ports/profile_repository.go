package ports

import (
	"context"
	"time"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

// ProfileRepository defines the interface for user profile persistence.
// ForceLogout stamps the profile; it never touches the session record.
type ProfileRepository interface {
	FindByID(ctx context.Context, userID string) (*domain.Profile, error)
	ForceLogout(ctx context.Context, userID string, at time.Time) error
}
