// Package service implements the session lifecycle state machine: identity
// restoration, profile resolution with cancel-and-replace fetches, sign-in
// with validation and attempt throttling, and unconditional local teardown
// on sign-out.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	"github.com/minghua-center/minghua/internal/observability/metrics"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"github.com/minghua-center/minghua/internal/session/domain"
	"github.com/minghua-center/minghua/internal/session/ratelimit"
	"github.com/minghua-center/minghua/pkg/validate"
	"go.uber.org/zap"
)

// Manager owns the authenticated-identity lifecycle. All exported methods are
// safe for concurrent use; the externally visible state is only ever read
// through State or Subscribe snapshots.
type Manager struct {
	log      *zap.Logger
	provider identitydomain.Provider
	profiles profiledomain.Repository
	ledger   *ratelimit.Ledger
	metrics  *metrics.Metrics
	devMode  bool

	mu          sync.Mutex
	state       domain.Snapshot
	initialized bool
	closed      bool
	fetchUserID string
	fetchCancel context.CancelFunc
	subs        map[int]func(domain.Snapshot)
	nextSub     int
	unsubscribe func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithDevMode enables logging of raw provider errors. Never enabled in
// production builds; user-facing messages stay generic either way.
func WithDevMode(enabled bool) Option {
	return func(mgr *Manager) { mgr.devMode = enabled }
}

func New(log *zap.Logger, provider identitydomain.Provider, profiles profiledomain.Repository, ledger *ratelimit.Ledger, opts ...Option) *Manager {
	m := &Manager{
		log:      log.Named("session.manager"),
		provider: provider,
		profiles: profiles,
		ledger:   ledger,
		state:    domain.Snapshot{Loading: true},
		subs:     make(map[int]func(domain.Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.unsubscribe = provider.OnAuthStateChange(m.handleAuthStateChange)
	return m
}

// Initialize restores any existing provider session and resolves its profile.
// Auth-state notifications arriving before Initialize completes are ignored,
// so a late "already signed in" echo cannot re-trigger work mid-bootstrap.
func (m *Manager) Initialize(ctx context.Context) error {
	identity, err := m.provider.GetSession(ctx)
	if err != nil {
		m.log.Warn("session restore failed", zap.Error(err))
		identity = nil
	}

	if identity == nil {
		m.mu.Lock()
		m.state.User = nil
		m.state.Profile = nil
		m.state.Loading = false
		m.initialized = true
		m.notifyLocked()
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	m.state.User = identity
	m.notifyLocked()
	m.mu.Unlock()

	m.fetchProfile(ctx, identity.ID)

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

// State returns the current snapshot.
func (m *Manager) State() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a snapshot observer and returns its unsubscribe func.
func (m *Manager) Subscribe(fn func(domain.Snapshot)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SignIn validates credentials locally, consults the attempt ledger, then
// asks the provider. Provider failures surface as a generic credential error.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*identitydomain.Identity, error) {
	m.setAuthLoading(true)
	defer m.setAuthLoading(false)

	email = validate.NormalizeEmail(email)
	if password == "" {
		m.metrics.SignInAttempt("validation")
		return nil, validate.NewError("password", "required")
	}
	if err := validate.Email(email); err != nil {
		m.metrics.SignInAttempt("validation")
		return nil, err
	}
	if err := validate.Password(password); err != nil {
		m.metrics.SignInAttempt("validation")
		return nil, err
	}

	// The attempt is recorded before the provider is consulted either way.
	if !m.ledger.Allow(email) {
		m.metrics.SignInAttempt("rate_limited")
		m.log.Warn("sign-in rate limited", zap.String("email", email))
		return nil, domain.ErrRateLimited
	}

	identity, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.metrics.SignInAttempt("rejected")
		if m.devMode {
			m.log.Debug("provider sign-in failed", zap.Error(err))
		}
		return nil, domain.ErrInvalidCredentials
	}
	m.ledger.Reset(email)
	m.metrics.SignInAttempt("ok")

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return identity, nil
	}
	m.state.User = identity
	m.state.Profile = nil
	m.notifyLocked()
	m.mu.Unlock()

	m.fetchProfile(ctx, identity.ID)
	return identity, nil
}

// SignOut cancels any in-flight profile fetch, asks the provider to end the
// session and clears local state unconditionally, even when the provider
// call fails.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.cancelFetchLocked()
	m.mu.Unlock()

	if err := m.provider.SignOut(ctx); err != nil {
		m.log.Warn("provider sign-out failed", zap.Error(err))
	}

	m.mu.Lock()
	if !m.closed {
		m.state.User = nil
		m.state.Profile = nil
		m.state.Loading = false
		m.notifyLocked()
	}
	m.mu.Unlock()
	return nil
}

// Close tears the manager down. Asynchronous continuations check the
// liveness flag before mutating shared state.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelFetchLocked()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.subs = map[int]func(domain.Snapshot){}
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Manager) handleAuthStateChange(event identitydomain.AuthEvent, identity *identitydomain.Identity) {
	m.mu.Lock()
	if !m.initialized || m.closed {
		m.mu.Unlock()
		return
	}

	currentID := ""
	if m.state.User != nil {
		currentID = m.state.User.ID
	}
	newID := ""
	if identity != nil {
		newID = identity.ID
	}
	// Token-refresh echoes and repeated sign-in events carry the same id.
	if newID == currentID {
		m.mu.Unlock()
		return
	}

	if identity == nil {
		m.cancelFetchLocked()
		m.state.User = nil
		m.state.Profile = nil
		m.state.Loading = false
		m.notifyLocked()
		m.mu.Unlock()
		return
	}

	m.state.User = identity
	m.state.Profile = nil
	m.notifyLocked()
	m.mu.Unlock()

	m.log.Debug("auth state changed", zap.String("event", string(event)), zap.String("user_id", newID))
	m.fetchProfile(context.Background(), identity.ID)
}

// fetchProfile resolves the profile for a user id. At most one fetch per
// user id is authoritative at a time; starting a fetch for a different id
// cancels the previous one and its eventual result is discarded.
func (m *Manager) fetchProfile(ctx context.Context, userID string) {
	if _, err := uuid.Parse(userID); err != nil {
		m.log.Warn("rejecting profile fetch for malformed user id", zap.String("user_id", userID))
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.fetchUserID == userID {
		m.mu.Unlock()
		return
	}
	m.cancelFetchLocked()
	fetchCtx, cancel := context.WithCancel(ctx)
	m.fetchUserID = userID
	m.fetchCancel = cancel
	m.mu.Unlock()
	defer cancel()

	row, err := m.profiles.FindByID(fetchCtx, userID)
	var profile *profiledomain.Profile
	if err == nil {
		profile, err = profiledomain.Parse(row, userID)
	} else if errors.Is(err, profiledomain.ErrNotFound) {
		err = &profiledomain.FatalError{Reason: "missing row"}
	}

	m.mu.Lock()
	if m.closed || m.fetchUserID != userID || fetchCtx.Err() != nil {
		// Superseded by a newer fetch or teardown; discard.
		m.mu.Unlock()
		return
	}
	m.fetchUserID = ""
	m.fetchCancel = nil

	switch {
	case err == nil:
		m.state.Profile = profile
		m.state.Loading = false
		m.notifyLocked()
		m.mu.Unlock()
		m.metrics.ProfileFetch("ok")

	case isFatal(err):
		// Malformed or mismatched profile, or inactive account: force a
		// clean sign-out rather than leaving a half-authenticated state.
		m.state.User = nil
		m.state.Profile = nil
		m.state.Loading = false
		m.notifyLocked()
		m.mu.Unlock()
		m.metrics.ProfileFetch("fatal")
		m.log.Error("profile integrity failure, forcing sign-out",
			zap.String("user_id", userID), zap.Error(err))
		if signOutErr := m.provider.SignOut(context.Background()); signOutErr != nil {
			m.log.Warn("provider sign-out after fatal profile error failed", zap.Error(signOutErr))
		}

	default:
		// Transient store failure: keep the user so the UI can offer a
		// retry instead of bouncing to login.
		m.state.Profile = nil
		m.state.Loading = false
		m.notifyLocked()
		m.mu.Unlock()
		m.metrics.ProfileFetch("transient")
		m.log.Warn("profile fetch failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (m *Manager) setAuthLoading(v bool) {
	m.mu.Lock()
	if !m.closed {
		m.state.AuthLoading = v
		m.notifyLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) cancelFetchLocked() {
	if m.fetchCancel != nil {
		m.fetchCancel()
		m.fetchCancel = nil
	}
	m.fetchUserID = ""
}

// notifyLocked snapshots state under the lock and dispatches asynchronously
// so subscribers may call back into the manager.
func (m *Manager) notifyLocked() {
	snap := m.state
	for _, fn := range m.subs {
		go fn(snap)
	}
}

func isFatal(err error) bool {
	var fatal *profiledomain.FatalError
	return errors.As(err, &fatal)
}
