package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/core/domain"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

type fakeIdentity struct {
	mu           sync.Mutex
	userID       string
	ok           bool
	currentDelay time.Duration
	currentCalls int
	createErr    error
	deleteCalls  int
	tokenCleared int
}

func (f *fakeIdentity) Current(context.Context) (string, bool, error) {
	f.mu.Lock()
	f.currentCalls++
	delay := f.currentDelay
	userID, ok := f.userID, f.ok
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return userID, ok, nil
}

func (f *fakeIdentity) CreateSession(_ context.Context, _ string, force bool) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil && !force {
		return nil, f.createErr
	}
	f.ok = true
	return &domain.Session{SessionID: "s1", UserID: f.userID, LastLoginAt: time.Now().UTC()}, nil
}

func (f *fakeIdentity) DeleteSession(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.ok = false
	return nil
}

func (f *fakeIdentity) ClearToken() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCleared++
}

func (f *fakeIdentity) clearedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCleared
}

type fakeProfiles struct {
	mu      sync.Mutex
	profile *domain.Profile
	calls   int
}

func (f *fakeProfiles) Fetch(_ context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	return f.profile, nil
}

type fakeResolver struct {
	perms domain.PermissionSet
}

func (f *fakeResolver) Resolve(context.Context, string, *domain.RoleDefinition) domain.PermissionSet {
	if f.perms != nil {
		return f.perms.Clone()
	}
	return domain.PermissionSet{"agenda": {Read: true}}
}

type fakeSub struct {
	events chan ports.ProfileEvent
	once   sync.Once
}

func (s *fakeSub) Events() <-chan ports.ProfileEvent { return s.events }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
}

func (f *fakeFeed) Subscribe(context.Context, string) (ports.FeedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{events: make(chan ports.ProfileEvent, 4)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) Publish(_ context.Context, event ports.ProfileEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

func (f *fakeFeed) subscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeLiveness struct {
	mu    sync.Mutex
	pings int
}

func (f *fakeLiveness) Ping(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeLiveness) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) SessionChanged(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "changed:"+snap.State.String())
}

func (l *recordingListener) SessionTerminated() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "terminated")
}

func (l *recordingListener) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fixture struct {
	monitor  *Monitor
	identity *fakeIdentity
	profiles *fakeProfiles
	feed     *fakeFeed
	liveness *fakeLiveness
	marker   *MemoryMarker
}

func newFixture(authenticated bool) *fixture {
	identity := &fakeIdentity{userID: "u1", ok: authenticated}
	profiles := &fakeProfiles{profile: &domain.Profile{ID: "u1", Role: "tecnico"}}
	feed := &fakeFeed{}
	liveness := &fakeLiveness{}
	marker := &MemoryMarker{}

	m := New(Deps{
		Identity:          identity,
		Profiles:          profiles,
		Resolver:          &fakeResolver{},
		Feed:              feed,
		Liveness:          liveness,
		Marker:            marker,
		HeartbeatInterval: 5 * time.Millisecond,
		Log:               zerolog.Nop(),
	})
	return &fixture{monitor: m, identity: identity, profiles: profiles, feed: feed, liveness: liveness, marker: marker}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestActivate_NoIdentitySettlesAnonymous(t *testing.T) {
	f := newFixture(false)
	defer f.monitor.Dispose()

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	snap := f.monitor.Snapshot()
	if snap.State != StateAnonymous || snap.Identity != nil {
		t.Fatalf("expected anonymous, got %+v", snap)
	}
	if f.feed.subscriptionCount() != 0 {
		t.Fatalf("anonymous monitor must not subscribe")
	}
}

func TestActivate_AuthenticatedCachesIdentity(t *testing.T) {
	f := newFixture(true)
	defer f.monitor.Dispose()

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	snap := f.monitor.Snapshot()
	if snap.State != StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", snap.State)
	}
	if snap.Identity == nil || snap.Identity.UserID != "u1" || snap.Identity.Role != "tecnico" {
		t.Fatalf("unexpected identity: %+v", snap.Identity)
	}
	if !snap.Identity.Permissions["agenda"].Read {
		t.Fatalf("permissions not cached: %+v", snap.Identity.Permissions)
	}
	if f.feed.subscriptionCount() != 1 {
		t.Fatalf("expected one subscription, got %d", f.feed.subscriptionCount())
	}
}

func TestActivate_ConcurrentConsumersShareOneInitialization(t *testing.T) {
	f := newFixture(true)
	defer f.monitor.Dispose()
	f.identity.currentDelay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.monitor.Activate(context.Background())
		}()
	}
	wg.Wait()

	f.identity.mu.Lock()
	calls := f.identity.currentCalls
	f.identity.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one identity fetch, got %d", calls)
	}
	if f.feed.subscriptionCount() != 1 {
		t.Fatalf("expected one subscription, got %d", f.feed.subscriptionCount())
	}

	// A later activation on a settled monitor is a no-op too.
	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("re-activate failed: %v", err)
	}
	if f.feed.subscriptionCount() != 1 {
		t.Fatalf("re-activation created a second subscription")
	}
}

func TestHeartbeat_TicksWhileAuthenticated(t *testing.T) {
	f := newFixture(true)
	defer f.monitor.Dispose()

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	waitFor(t, func() bool { return f.liveness.count() >= 2 }, "heartbeats to tick")
}

func TestForcedLogout_TerminatesAndNotifiesInOrder(t *testing.T) {
	f := newFixture(true)
	defer f.monitor.Dispose()

	first := &recordingListener{}
	second := &recordingListener{}
	f.monitor.Subscribe(first)
	f.monitor.Subscribe(second)

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	at := time.Now().UTC()
	_ = f.feed.Publish(context.Background(), ports.ProfileEvent{UserID: "u1", LastForceLogoutAt: &at})

	waitFor(t, func() bool { return f.monitor.Snapshot().State == StateTerminated }, "termination")

	if !f.marker.Terminated() {
		t.Fatalf("terminated marker not persisted")
	}
	if f.monitor.Snapshot().Identity != nil {
		t.Fatalf("cached identity not cleared")
	}

	for _, l := range []*recordingListener{first, second} {
		events := l.seen()
		termAt, changeAt := -1, -1
		for i, e := range events {
			switch e {
			case "terminated":
				termAt = i
			case "changed:terminated":
				changeAt = i
			}
		}
		if termAt == -1 {
			t.Fatalf("listener missed the termination broadcast: %v", events)
		}
		if changeAt != -1 && changeAt < termAt {
			t.Fatalf("state change observed before termination: %v", events)
		}
	}

	// Heartbeat must stop after termination.
	base := f.liveness.count()
	time.Sleep(30 * time.Millisecond)
	if grown := f.liveness.count() - base; grown > 1 {
		t.Fatalf("heartbeat still running after termination (+%d)", grown)
	}
}

func TestForcedLogout_StickyAcrossActivation(t *testing.T) {
	f := newFixture(true)
	defer f.monitor.Dispose()

	f.marker.SetTerminated()

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if got := f.monitor.Snapshot().State; got != StateTerminated {
		t.Fatalf("expected terminated, got %s", got)
	}
	f.identity.mu.Lock()
	calls := f.identity.currentCalls
	f.identity.mu.Unlock()
	if calls != 0 {
		t.Fatalf("terminated monitor must not hit the network, got %d calls", calls)
	}
}

func TestForcedLogout_KnownTimestampIgnored(t *testing.T) {
	at := time.Now().UTC().Add(-time.Hour)
	f := newFixture(true)
	defer f.monitor.Dispose()
	f.profiles.profile.LastForceLogoutAt = &at

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	// The same timestamp the tab already saw at boot is not a new signal.
	_ = f.feed.Publish(context.Background(), ports.ProfileEvent{UserID: "u1", LastForceLogoutAt: &at})
	time.Sleep(20 * time.Millisecond)

	if got := f.monitor.Snapshot().State; got != StateAuthenticated {
		t.Fatalf("known timestamp must not terminate, got %s", got)
	}
}

func TestLogin_ConflictDiscardsToken(t *testing.T) {
	f := newFixture(false)
	defer f.monitor.Dispose()

	lastLogin := time.Now().UTC().Add(-time.Minute)
	f.identity.createErr = &domain.SessionConflictError{LastLoginAt: lastLogin}

	err := f.monitor.Login(context.Background(), "token")
	if !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var conflict *domain.SessionConflictError
	if !errors.As(err, &conflict) || !conflict.LastLoginAt.Equal(lastLogin) {
		t.Fatalf("conflict details not surfaced: %v", err)
	}
	if f.identity.clearedCount() != 1 {
		t.Fatalf("identity token must be discarded on conflict")
	}
	if got := f.monitor.Snapshot().State; got == StateAuthenticated {
		t.Fatalf("conflicted login must not authenticate")
	}
}

func TestForceReclaim_ReplacesOtherSession(t *testing.T) {
	f := newFixture(false)
	defer f.monitor.Dispose()
	f.identity.createErr = &domain.SessionConflictError{LastLoginAt: time.Now().UTC()}

	if err := f.monitor.ForceReclaim(context.Background(), "token"); err != nil {
		t.Fatalf("force reclaim failed: %v", err)
	}
	if got := f.monitor.Snapshot().State; got != StateAuthenticated {
		t.Fatalf("expected authenticated after reclaim, got %s", got)
	}
}

func TestLogin_ClearsTerminatedMarker(t *testing.T) {
	f := newFixture(false)
	defer f.monitor.Dispose()
	f.marker.SetTerminated()

	if err := f.monitor.Login(context.Background(), "token"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if f.marker.Terminated() {
		t.Fatalf("successful login must clear the marker")
	}
	if got := f.monitor.Snapshot().State; got != StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", got)
	}
}

func TestSignOut_ClearsEverything(t *testing.T) {
	f := newFixture(true)
	defer f.monitor.Dispose()

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	f.marker.SetTerminated()

	if err := f.monitor.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out failed: %v", err)
	}

	if f.identity.deleteCalls != 1 {
		t.Fatalf("server session not deleted")
	}
	if f.identity.clearedCount() != 1 {
		t.Fatalf("identity token not cleared")
	}
	if f.marker.Terminated() {
		t.Fatalf("terminated marker not cleared")
	}
	snap := f.monitor.Snapshot()
	if snap.State != StateAnonymous || snap.Identity != nil {
		t.Fatalf("expected anonymous with no identity, got %+v", snap)
	}
}

func TestDispose_StopsHeartbeatAndSubscription(t *testing.T) {
	f := newFixture(true)

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	waitFor(t, func() bool { return f.liveness.count() >= 1 }, "first heartbeat")

	f.monitor.Dispose()

	base := f.liveness.count()
	time.Sleep(30 * time.Millisecond)
	if grown := f.liveness.count() - base; grown > 1 {
		t.Fatalf("heartbeat still running after dispose (+%d)", grown)
	}

	if err := f.monitor.Activate(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestConsumer_UnsubscribeStopsNotifications(t *testing.T) {
	f := newFixture(true)
	defer f.monitor.Dispose()

	l := &recordingListener{}
	unsubscribe := f.monitor.Subscribe(l)
	unsubscribe()

	if err := f.monitor.Activate(context.Background()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if events := l.seen(); len(events) != 0 {
		t.Fatalf("unsubscribed listener still notified: %v", events)
	}
}
