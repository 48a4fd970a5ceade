// Package monitor implements the per-tab session runtime shared by every UI
// consumer. One Monitor instance owns the cached identity, the single
// realtime profile subscription, and the heartbeat loop; consumers read
// derived state and subscribe to change notifications through an explicit
// interface instead of hidden globals.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/core/domain"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

const defaultHeartbeatInterval = time.Minute

// ErrDisposed is returned by operations on a disposed Monitor.
var ErrDisposed = errors.New("session monitor disposed")

// State is the lifecycle state of the tab's session.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
	// StateTerminated is sticky across reloads within the tab until a
	// fresh, successful login clears the persisted marker.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Identity is the cached authenticated user with resolved permissions.
type Identity struct {
	UserID      string
	Role        string
	Permissions domain.PermissionSet
}

// Snapshot is the read-only view exposed to consumers.
type Snapshot struct {
	State    State
	Identity *Identity
}

// Listener receives state notifications. SessionTerminated fires once when
// an administrator invalidates the session; SessionChanged fires on every
// settled state transition. Both are called sequentially from a single
// goroutine, so every consumer observes a termination before any of them
// reacts to the resulting state change.
type Listener interface {
	SessionChanged(Snapshot)
	SessionTerminated()
}

// IdentityClient talks to the identity provider and the session endpoint.
type IdentityClient interface {
	// Current returns the authenticated user id, if any.
	Current(ctx context.Context) (userID string, ok bool, err error)
	// CreateSession exchanges an identity token for an exclusive session.
	// A conflict surfaces as *domain.SessionConflictError.
	CreateSession(ctx context.Context, idToken string, force bool) (*domain.Session, error)
	DeleteSession(ctx context.Context) error
	// ClearToken discards the locally held identity token.
	ClearToken()
}

// ProfileClient fetches the profile slice the monitor needs.
type ProfileClient interface {
	Fetch(ctx context.Context, userID string) (*domain.Profile, error)
}

// LivenessClient notifies the liveness endpoint.
type LivenessClient interface {
	Ping(ctx context.Context, userID string) error
}

// MarkerStore persists the "terminated" flag so it survives a page reload.
type MarkerStore interface {
	Terminated() bool
	SetTerminated()
	Clear()
}

// Deps carries the Monitor's collaborators.
type Deps struct {
	Identity          IdentityClient
	Profiles          ProfileClient
	Resolver          ports.PermissionResolver
	Feed              ports.ChangeFeed
	Liveness          LivenessClient
	Marker            MarkerStore
	HeartbeatInterval time.Duration
	Log               zerolog.Logger
}

// Monitor is the single logical session instance of one tab.
type Monitor struct {
	deps Deps

	// initMu serializes initialization paths (Activate, Login, SignOut) so
	// concurrent consumers cannot race a second identity fetch or feed
	// subscription into existence.
	initMu sync.Mutex

	mu              sync.Mutex
	state           State
	identity        *Identity
	lastForceLogout *time.Time
	listeners       map[int]Listener
	nextListener    int
	sub             ports.FeedSubscription
	subUserID       string
	hbCancel        context.CancelFunc
	hbUserID        string
	inflight        chan struct{}
	disposed        bool
}

// New creates a Monitor. Call Activate before reading state and Dispose when
// the owning tab goes away.
func New(deps Deps) *Monitor {
	if deps.HeartbeatInterval <= 0 {
		deps.HeartbeatInterval = defaultHeartbeatInterval
	}
	return &Monitor{
		deps:      deps,
		state:     StateUninitialized,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a consumer and returns its unsubscribe function.
func (m *Monitor) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Snapshot returns the current state and a copy of the cached identity.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state}
	if m.identity != nil {
		ident := *m.identity
		ident.Permissions = m.identity.Permissions.Clone()
		snap.Identity = &ident
	}
	return snap
}

// Activate settles the monitor's state on first use. Concurrent activations
// coalesce into one in-flight initialization: exactly one identity fetch,
// one permission resolution, one subscription, and one heartbeat result no
// matter how many consumers call it at once.
func (m *Monitor) Activate(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if m.deps.Marker.Terminated() {
		changed := m.state != StateTerminated
		m.state = StateTerminated
		m.identity = nil
		listeners := m.listenersLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		if changed {
			for _, l := range listeners {
				l.SessionChanged(snap)
			}
		}
		return nil
	}
	if m.state == StateAuthenticated || m.state == StateAnonymous {
		m.mu.Unlock()
		return nil
	}
	if m.inflight != nil {
		inflight := m.inflight
		m.mu.Unlock()
		select {
		case <-inflight:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	m.inflight = done
	m.state = StateLoading
	m.mu.Unlock()

	m.initMu.Lock()
	m.initialize(ctx)
	m.initMu.Unlock()

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()
	close(done)
	return nil
}

// initialize runs the identity lookup, permission resolution, subscription
// and heartbeat setup. Caller holds initMu.
func (m *Monitor) initialize(ctx context.Context) {
	userID, ok, err := m.deps.Identity.Current(ctx)
	if err != nil {
		// Doubt about authentication fails closed to anonymous.
		m.deps.Log.Warn().Err(err).Msg("identity lookup failed, settling anonymous")
		m.settle(StateAnonymous, nil, nil)
		return
	}
	if !ok {
		m.settle(StateAnonymous, nil, nil)
		return
	}

	profile, err := m.deps.Profiles.Fetch(ctx, userID)
	if err != nil {
		m.deps.Log.Warn().Err(err).Str("user_id", userID).Msg("profile fetch failed, settling anonymous")
		m.settle(StateAnonymous, nil, nil)
		return
	}

	// Resolution never fails; it degrades through its fallback tiers.
	perms := m.deps.Resolver.Resolve(ctx, profile.Role, nil)

	ident := &Identity{UserID: userID, Role: profile.Role, Permissions: perms}
	m.ensureSubscription(ctx, userID)
	m.settle(StateAuthenticated, ident, profile.LastForceLogoutAt)
	m.ensureHeartbeat(userID)
}

// settle transitions to a terminal state and notifies consumers.
func (m *Monitor) settle(state State, ident *Identity, lastForceLogout *time.Time) {
	m.mu.Lock()
	m.state = state
	m.identity = ident
	m.lastForceLogout = lastForceLogout
	listeners := m.listenersLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	for _, l := range listeners {
		l.SessionChanged(snap)
	}
}

// ensureSubscription guarantees exactly one feed subscription per
// authenticated user. A subscription for the same user is kept; a different
// user tears the old one down first. Caller holds initMu.
func (m *Monitor) ensureSubscription(ctx context.Context, userID string) {
	m.mu.Lock()
	if m.sub != nil && m.subUserID == userID {
		m.mu.Unlock()
		return
	}
	old := m.sub
	m.sub = nil
	m.subUserID = ""
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	sub, err := m.deps.Feed.Subscribe(ctx, userID)
	if err != nil {
		// Not fatal for authentication: the gate still rejects a stale
		// session on the next request even if no event arrives here.
		m.deps.Log.Warn().Err(err).Str("user_id", userID).Msg("profile subscription failed")
		return
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		_ = sub.Close()
		return
	}
	m.sub = sub
	m.subUserID = userID
	m.mu.Unlock()

	go m.pump(sub)
}

func (m *Monitor) pump(sub ports.FeedSubscription) {
	for event := range sub.Events() {
		m.handleProfileEvent(event)
	}
}

// handleProfileEvent inspects a profile update for a forced logout: a
// non-nil timestamp different from the last one this tab has seen.
func (m *Monitor) handleProfileEvent(event ports.ProfileEvent) {
	m.mu.Lock()
	if event.LastForceLogoutAt == nil ||
		(m.lastForceLogout != nil && event.LastForceLogoutAt.Equal(*m.lastForceLogout)) {
		m.mu.Unlock()
		return
	}
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return
	}

	m.lastForceLogout = event.LastForceLogoutAt
	m.deps.Marker.SetTerminated()
	m.stopHeartbeatLocked()
	sub := m.sub
	m.sub = nil
	m.subUserID = ""
	m.identity = nil
	m.state = StateTerminated
	listeners := m.listenersLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}

	m.deps.Log.Info().Str("user_id", event.UserID).Msg("session terminated by administrator")

	// Synchronous fan-out: every consumer sees the termination before any
	// of them observes the new state.
	for _, l := range listeners {
		l.SessionTerminated()
	}
	for _, l := range listeners {
		l.SessionChanged(snap)
	}
}

// ensureHeartbeat starts the fixed-interval liveness loop, replacing a loop
// that belongs to a different user. Caller holds initMu.
func (m *Monitor) ensureHeartbeat(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	if m.hbCancel != nil {
		if m.hbUserID == userID {
			return
		}
		m.stopHeartbeatLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.hbCancel = cancel
	m.hbUserID = userID

	interval := m.deps.HeartbeatInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Transient failures are ignored; the next tick retries.
				if err := m.deps.Liveness.Ping(ctx, userID); err != nil {
					m.deps.Log.Debug().Err(err).Msg("heartbeat failed")
				}
			}
		}
	}()
}

func (m *Monitor) stopHeartbeatLocked() {
	if m.hbCancel != nil {
		m.hbCancel()
		m.hbCancel = nil
		m.hbUserID = ""
	}
}

// Login exchanges an identity token for a session. On a conflict the token
// is discarded immediately (no cookie is ever set for the attempt) and the
// returned error carries the other session's login time, so the caller can
// offer to wait or to reclaim.
func (m *Monitor) Login(ctx context.Context, idToken string) error {
	return m.login(ctx, idToken, false)
}

// ForceReclaim repeats a conflicted login, unconditionally replacing the
// other session.
func (m *Monitor) ForceReclaim(ctx context.Context, idToken string) error {
	return m.login(ctx, idToken, true)
}

func (m *Monitor) login(ctx context.Context, idToken string, force bool) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	m.mu.Unlock()

	_, err := m.deps.Identity.CreateSession(ctx, idToken, force)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExists) {
			m.deps.Identity.ClearToken()
		}
		return err
	}

	// A successful login clears the sticky terminated marker.
	m.deps.Marker.Clear()

	m.mu.Lock()
	m.state = StateLoading
	m.mu.Unlock()

	m.initialize(ctx)
	return nil
}

// SignOut deletes the server-side session, clears the identity token, the
// cached state and the terminated marker, and settles anonymous.
func (m *Monitor) SignOut(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	m.stopHeartbeatLocked()
	sub := m.sub
	m.sub = nil
	m.subUserID = ""
	m.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}

	err := m.deps.Identity.DeleteSession(ctx)
	if err != nil {
		m.deps.Log.Warn().Err(err).Msg("server-side session delete failed")
	}
	m.deps.Identity.ClearToken()
	m.deps.Marker.Clear()

	m.settle(StateAnonymous, nil, nil)
	return err
}

// Refresh re-fetches the profile and re-resolves permissions for the
// current user without touching the session.
func (m *Monitor) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateAuthenticated || m.identity == nil {
		m.mu.Unlock()
		return nil
	}
	userID := m.identity.UserID
	m.mu.Unlock()

	profile, err := m.deps.Profiles.Fetch(ctx, userID)
	if err != nil {
		return err
	}
	perms := m.deps.Resolver.Resolve(ctx, profile.Role, nil)

	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return nil
	}
	m.identity = &Identity{UserID: userID, Role: profile.Role, Permissions: perms}
	listeners := m.listenersLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	for _, l := range listeners {
		l.SessionChanged(snap)
	}
	return nil
}

// Dispose tears down the subscription and heartbeat. The monitor is dead
// afterwards; a new tab builds a new one.
func (m *Monitor) Dispose() {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.stopHeartbeatLocked()
	sub := m.sub
	m.sub = nil
	m.subUserID = ""
	m.listeners = make(map[int]Listener)
	m.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
}

func (m *Monitor) listenersLocked() []Listener {
	out := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l)
	}
	return out
}
