package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/core/domain"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

const defaultGraceWindow = 5 * time.Minute

// SessionAuthority enforces single-active-session-per-user at creation time.
// The exclusivity is best effort: two creates racing inside the grace window
// can both pass the conflict check, and nothing at the storage layer stops
// them. Correctness everywhere else hinges only on "replace, then verify".
type SessionAuthority struct {
	repo  ports.SessionRepository
	grace time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewSessionAuthority returns a SessionAuthority with the given grace window.
// If graceWindow <= 0, defaultGraceWindow is used.
func NewSessionAuthority(repo ports.SessionRepository, graceWindow time.Duration, log zerolog.Logger) *SessionAuthority {
	if graceWindow <= 0 {
		graceWindow = defaultGraceWindow
	}
	return &SessionAuthority{
		repo:  repo,
		grace: graceWindow,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log,
	}
}

// Create issues a new session for userID, replacing any prior record.
// A prior session younger than the grace window is presumed still active:
// the call returns a *domain.SessionConflictError carrying its login time
// and mutates nothing. force skips the conflict check entirely.
func (s *SessionAuthority) Create(ctx context.Context, userID string, force bool) (*domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("create session: empty user id")
	}

	existing, err := s.repo.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if existing != nil && !force {
		if age := s.now().Sub(existing.LastLoginAt); age < s.grace {
			s.log.Info().
				Str("user_id", userID).
				Time("last_login_at", existing.LastLoginAt).
				Msg("session creation rejected, prior session inside grace window")
			return nil, &domain.SessionConflictError{LastLoginAt: existing.LastLoginAt}
		}
	}

	session := &domain.Session{
		SessionID:   uuid.NewString(),
		UserID:      userID,
		LastLoginAt: s.now(),
	}
	if err := s.repo.Store(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("user_id", userID).
		Bool("forced", force && existing != nil).
		Msg("session created")
	return session, nil
}

// Verify resolves a session id to its record, or domain.ErrSessionNotFound.
func (s *SessionAuthority) Verify(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, domain.ErrSessionNotFound
	}
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session record. Deleting a missing session is not an error.
func (s *SessionAuthority) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
