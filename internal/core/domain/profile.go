package domain

import (
	"errors"
	"time"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is the slice of a user account the session core cares about.
// LastForceLogoutAt is written exclusively by administrator action and is
// never cleared; invalidation compares it against the session's login time.
type Profile struct {
	ID                string     `json:"id"`
	Role              string     `json:"role"`
	LastForceLogoutAt *time.Time `json:"last_force_logout_at,omitempty"`
}

// ForcedOut reports whether a session with the given login time has been
// invalidated by an administrator. The session row itself is untouched; the
// check is made lazily wherever the session is verified.
func (p *Profile) ForcedOut(lastLoginAt time.Time) bool {
	return p.LastForceLogoutAt != nil && p.LastForceLogoutAt.After(lastLoginAt)
}
