// Package session owns the authentication state machine: it answers "give me
// a valid token", refreshes proactively before expiry, single-flights
// concurrent refresh attempts, and keeps the credential store in sync with
// the identity provider.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wanderlore/wanderlore-go/internal/credstore"
	"github.com/wanderlore/wanderlore-go/internal/identity"
)

// SafetyBuffer is how long before expiry a token stops being handed out
// without a refresh, and how early the background refresh fires.
const SafetyBuffer = 5 * time.Minute

// Sentinel errors for the session lifecycle.
var (
	// ErrNoSession means no credentials exist — expected on first run or
	// after sign-out, not a failure.
	ErrNoSession = errors.New("session: no credentials stored")

	// ErrRefreshRejected means the refresh token was rejected by the
	// identity provider. Terminal: local credentials have been purged and a
	// fresh sign-in is required.
	ErrRefreshRejected = errors.New("session: refresh token rejected")
)

// State is the manager's position in the session lifecycle.
type State int

const (
	StateNoSession State = iota
	StateValid
	StateExpiring
	StateRefreshing
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no-session"
	case StateValid:
		return "valid"
	case StateExpiring:
		return "expiring"
	case StateRefreshing:
		return "refreshing"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Provider is the identity-provider surface the manager consumes. Sign-in is
// deliberately absent: establishing a session is external input (see
// Establish), not something the manager initiates.
type Provider interface {
	CurrentSession(ctx context.Context) (*identity.Tokens, error)
	RefreshSession(ctx context.Context, refreshToken string) (*identity.Tokens, error)
	SignOut(ctx context.Context) error
}

// Manager owns the current session. All mutation of the credential store
// goes through it; callers never reach into the store directly.
type Manager struct {
	store    *credstore.Store
	provider Provider
	logger   *slog.Logger

	// group collapses concurrent refresh attempts into one provider call.
	group singleflight.Group

	mu     sync.Mutex
	cur    *credstore.Session
	state  State
	timer  *refreshTimer
	loaded bool

	// epoch increments on every sign-out or invalidation. A refresh that
	// settles against an older epoch is discarded; persisting it would
	// resurrect cleared credentials.
	epoch uint64

	// now is replaced in tests.
	now func() time.Time
}

// NewManager creates a session manager. The store is consulted lazily on the
// first token request, so construction never does I/O.
func NewManager(store *credstore.Store, provider Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:    store,
		provider: provider,
		logger:   logger,
		state:    StateNoSession,
		now:      time.Now,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Username returns the signed-in username, or "" when there is no session.
func (m *Manager) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil {
		return ""
	}

	return m.cur.Username
}

// IsAuthenticated is a cheap check: true if a session is held in memory or
// the store's boot-time marker is set. It never triggers a refresh.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	cur := m.cur
	m.mu.Unlock()

	if cur != nil {
		return true
	}

	return m.store.IsAuthenticated()
}

// GetToken returns a token valid for at least SafetyBuffer. Fast path: the
// held session's expiry is far enough out and no I/O happens. Otherwise the
// manager refreshes (single-flighted) and returns the new token.
func (m *Manager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()

	if err := m.ensureLoadedLocked(); err != nil {
		m.mu.Unlock()
		return "", err
	}

	if m.cur != nil && m.cur.ValidFor(m.now(), SafetyBuffer) {
		m.state = StateValid
		token := m.cur.IDToken
		m.mu.Unlock()

		return token, nil
	}

	if m.cur == nil {
		// Invalid is terminal until a fresh sign-in; callers still need to
		// tell "session killed server-side" apart from "never signed in".
		if m.state != StateInvalid {
			m.state = StateNoSession
		}

		m.mu.Unlock()

		return "", ErrNoSession
	}

	m.state = StateExpiring
	m.mu.Unlock()

	return m.Refresh(ctx, false)
}

// Refresh renews the session. Concurrent calls share one in-flight attempt:
// all callers receive the result of a single provider call. With force
// false, a session already refreshed by the in-flight winner is returned
// as-is; with force true the provider is always consulted.
//
// On success the new session is persisted and the background refresh is
// re-armed. When no refresh token is available the manager reports
// ErrNoSession. When the provider rejects the refresh token the credential
// store is purged, the state becomes Invalid, and ErrRefreshRejected is
// returned. Transient transport failures purge nothing.
func (m *Manager) Refresh(ctx context.Context, force bool) (string, error) {
	v, err, shared := m.group.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx, force)
	})

	if shared {
		m.logger.Debug("refresh shared with concurrent caller")
	}

	if err != nil {
		return "", err
	}

	token, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("session: unexpected refresh result type %T", v)
	}

	return token, nil
}

// doRefresh is the single-flighted body of Refresh.
func (m *Manager) doRefresh(ctx context.Context, force bool) (any, error) {
	m.mu.Lock()

	if err := m.ensureLoadedLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	// A caller that lost the race to an in-flight refresh re-enters here
	// after the winner settled; without force, the fresh session is enough.
	if !force && m.cur != nil && m.cur.ValidFor(m.now(), SafetyBuffer) {
		m.state = StateValid
		token := m.cur.IDToken
		m.mu.Unlock()

		return token, nil
	}

	refreshToken := ""
	username := ""

	if m.cur != nil {
		refreshToken = m.cur.RefreshToken
		username = m.cur.Username
	}

	m.state = StateRefreshing
	epoch := m.epoch
	m.mu.Unlock()

	tok, err := m.providerRefresh(ctx, refreshToken)
	if err != nil {
		return nil, m.refreshFailed(err, refreshToken)
	}

	if tok.Username == "" {
		tok.Username = username
	}

	return m.installTokens(tok, epoch)
}

// providerRefresh tries the provider's live-session path first, then falls
// back to the persisted refresh token (e.g. after a cold start, where no
// live handle exists but one stored refresh attempt must still be possible).
func (m *Manager) providerRefresh(ctx context.Context, refreshToken string) (*identity.Tokens, error) {
	tok, err := m.provider.CurrentSession(ctx)
	if err == nil {
		return tok, nil
	}

	if !errors.Is(err, identity.ErrNoLiveSession) {
		m.logger.Debug("live session renewal failed, falling back to stored refresh token",
			slog.String("error", err.Error()),
		)
	}

	if refreshToken == "" {
		return nil, ErrNoSession
	}

	return m.provider.RefreshSession(ctx, refreshToken)
}

// refreshFailed maps a failed refresh to the session-level error taxonomy.
// Only a provider-side rejection is terminal and purges credentials;
// transport failures leave the stored session untouched for a later retry.
func (m *Manager) refreshFailed(err error, refreshToken string) error {
	if errors.Is(err, ErrNoSession) {
		m.mu.Lock()
		m.state = StateNoSession
		m.mu.Unlock()

		return ErrNoSession
	}

	if errors.Is(err, identity.ErrRefreshExpired) || errors.Is(err, identity.ErrNotAuthorized) {
		m.logger.Warn("refresh token rejected, purging credentials",
			slog.Bool("had_refresh_token", refreshToken != ""),
		)

		m.mu.Lock()
		m.timer.Stop()
		m.timer = nil
		m.cur = nil
		m.state = StateInvalid
		m.epoch++
		m.mu.Unlock()

		if clearErr := m.store.Clear(); clearErr != nil {
			m.logger.Warn("failed to clear credentials after rejected refresh",
				slog.String("error", clearErr.Error()),
			)
		}

		return fmt.Errorf("%w: %w", ErrRefreshRejected, err)
	}

	m.mu.Lock()
	m.state = StateExpiring
	m.mu.Unlock()

	return fmt.Errorf("session: refresh failed: %w", err)
}

// installTokens persists a successful grant, replaces the held session
// atomically, and re-arms the background refresh. epoch is the session
// epoch captured when the refresh started; a grant from an older epoch is
// discarded because a sign-out or invalidation happened while the provider
// call was in flight, and persisting it would resurrect cleared
// credentials. The save happens under the lock so a concurrent sign-out
// cannot interleave between the epoch check and the write.
func (m *Manager) installTokens(tok *identity.Tokens, epoch uint64) (string, error) {
	sess := &credstore.Session{
		IDToken:      tok.IDToken,
		ExpiresAt:    tok.ExpiresAt(m.now()),
		RefreshToken: tok.RefreshToken,
		Username:     tok.Username,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		m.logger.Info("discarding refresh that settled after sign-out")

		return "", ErrNoSession
	}

	if err := m.store.Save(sess); err != nil {
		return "", fmt.Errorf("session: persisting refreshed session: %w", err)
	}

	m.cur = sess
	m.loaded = true
	m.state = StateValid
	m.scheduleLocked(sess.ExpiresAt)

	m.logger.Info("session refreshed",
		slog.String("username", sess.Username),
		slog.Time("expiry", sess.ExpiresAt),
	)

	return sess.IDToken, nil
}

// Establish installs a session obtained outside the manager (a successful
// sign-in). It persists the grant, arms the background refresh, and moves
// the state machine to Valid.
func (m *Manager) Establish(tok *identity.Tokens) error {
	if tok == nil || tok.IDToken == "" {
		return fmt.Errorf("session: establish called without tokens")
	}

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	_, err := m.installTokens(tok, epoch)

	return err
}

// SignOut cancels the background refresh, clears stored credentials, and
// signs out of the identity provider. Provider failure is tolerated: local
// state is cleared no matter what, and only a local clear failure is
// returned as an error.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.timer.Stop()
	m.timer = nil
	m.cur = nil
	m.loaded = true
	m.state = StateNoSession
	m.epoch++
	m.mu.Unlock()

	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("identity provider sign-out failed, clearing local credentials anyway",
			slog.String("error", err.Error()),
		)
	}

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("session: clearing credentials: %w", err)
	}

	m.logger.Info("signed out")

	return nil
}

// Invalidate purges local credentials and marks the session terminally
// invalid without calling the identity provider. Used when the backend
// rejects a freshly refreshed token: the session is dead server-side, so
// only a fresh sign-in can recover.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.timer.Stop()
	m.timer = nil
	m.cur = nil
	m.loaded = true
	m.state = StateInvalid
	m.epoch++
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing credentials after session invalidation",
			slog.String("error", err.Error()),
		)
	}

	m.logger.Info("session invalidated, credentials purged")
}

// ReloadFromStore drops the held session and re-reads the credential store.
// Wired to the store's file watcher so an external sign-out (another process
// clearing credentials) cancels the background refresh here too.
func (m *Manager) ReloadFromStore() {
	sess, err := m.store.Load()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.timer.Stop()
	m.timer = nil
	m.loaded = true
	m.epoch++

	if err != nil || sess == nil {
		m.cur = nil
		m.state = StateNoSession

		return
	}

	m.cur = sess
	m.state = StateValid
	m.scheduleLocked(sess.ExpiresAt)
}

// Close cancels the background refresh without touching stored credentials.
// For process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timer.Stop()
	m.timer = nil
}

// ensureLoadedLocked loads the persisted session once. Callers hold m.mu.
func (m *Manager) ensureLoadedLocked() error {
	if m.loaded {
		return nil
	}

	sess, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("session: loading stored session: %w", err)
	}

	m.loaded = true
	m.cur = sess

	// Arm the proactive refresh only for sessions still outside the safety
	// buffer. A session already inside it is about to be refreshed by the
	// caller that triggered this load, and that refresh re-arms the timer.
	if sess != nil && sess.ValidFor(m.now(), SafetyBuffer) {
		m.scheduleLocked(sess.ExpiresAt)
	}

	return nil
}

// scheduleLocked re-arms the background refresh to fire SafetyBuffer before
// expiry (immediately if that moment has passed). Callers hold m.mu.
func (m *Manager) scheduleLocked(expiresAt time.Time) {
	m.timer.Stop()

	delay := expiresAt.Sub(m.now()) - SafetyBuffer

	m.timer = newRefreshTimer(delay, func() {
		m.logger.Debug("background refresh firing")

		if _, err := m.Refresh(context.Background(), true); err != nil {
			// Expected after an external sign-out; anything else is logged
			// and retried on the next GetToken.
			if !errors.Is(err, ErrNoSession) {
				m.logger.Warn("background refresh failed", slog.String("error", err.Error()))
			}
		}
	})

	m.logger.Debug("background refresh scheduled",
		slog.Duration("delay", delay),
		slog.Time("expiry", expiresAt),
	)
}
