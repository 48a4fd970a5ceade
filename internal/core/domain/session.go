package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is the sentinel matched by errors.Is against a
// SessionConflictError. Use errors.As to recover the conflicting login time.
var ErrSessionExists = errors.New("session already exists")

// Session is the server-side record of the single session currently allowed
// for a user. At most one record per user is considered live at any time;
// this is enforced at creation, not by a storage constraint.
type Session struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// SessionConflictError is returned when a login attempt collides with a
// session still inside the grace window. It carries the other session's
// login time so the caller can decide whether to wait or force a reclaim.
type SessionConflictError struct {
	LastLoginAt time.Time
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("session already exists (last login %s)", e.LastLoginAt.Format(time.RFC3339))
}

func (e *SessionConflictError) Is(target error) bool {
	return target == ErrSessionExists
}
