package session

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/natalyineu/db-sub000/internal/gateway"
	"github.com/natalyineu/db-sub000/internal/profile"
)

// Phase names the manager's position in its lifecycle.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitializing  Phase = "initializing"
	PhaseAuthenticated Phase = "authenticated"
	PhaseAnonymous     Phase = "anonymous"
)

// Op identifies the operation that owns a loading flag.
type Op string

const (
	OpInitial Op = "initial"
	OpSignIn  Op = "signIn"
	OpSignUp  Op = "signUp"
	OpSignOut Op = "signOut"
	OpProfile Op = "profile"
)

// LoadingState exposes one independent flag per operation. Consumers
// read Any for a generic spinner and individual flags for
// operation-specific UI.
type LoadingState struct {
	Initial bool `json:"initial"`
	SignIn  bool `json:"signIn"`
	SignUp  bool `json:"signUp"`
	SignOut bool `json:"signOut"`
	Profile bool `json:"profile"`
}

// Any reports whether any operation is in flight.
func (l LoadingState) Any() bool {
	return l.Initial || l.SignIn || l.SignUp || l.SignOut || l.Profile
}

// State is a point-in-time snapshot of the manager.
type State struct {
	Phase   Phase
	Session *gateway.Session
	User    *gateway.User
	Profile *profile.Profile
	Err     string
	Loading LoadingState
}

// IsAuthenticated reports whether a session and its user are both held.
func (s State) IsAuthenticated() bool {
	return s.Session != nil && s.User != nil
}

// Manager owns the authoritative session/user/profile state. It is
// constructed once at application start; the cache and guard it carries
// are plain fields, not package globals.
type Manager struct {
	gw      gateway.Gateway
	fetcher *Fetcher
	logger  *slog.Logger

	mu      sync.Mutex
	phase   Phase
	session *gateway.Session
	user    *gateway.User
	profile *profile.Profile
	errMsg  string
	loading LoadingState

	// resolveGen is the identity epoch: bumped on every user switch and
	// sign-out. A resolution started in an older epoch must not
	// overwrite newer state, no matter when it finishes. Attempts within
	// one epoch share the generation, so a guard-refused duplicate can
	// never invalidate the attempt that actually fetched.
	resolveGen uint64

	unsubscribe func()
	wg          sync.WaitGroup
}

// NewManager creates a Manager in the Uninitialized phase.
func NewManager(gw gateway.Gateway, fetcher *Fetcher, logger *slog.Logger) *Manager {
	return &Manager{
		gw:      gw,
		fetcher: fetcher,
		logger:  logger,
		phase:   PhaseUninitialized,
	}
}

// Initialize bootstraps the session exactly once at startup. A failing
// session read gets exactly one refresh attempt before the manager
// settles into Anonymous with the error recorded. Profile resolution
// runs on the cold-start deadline. Errors never propagate: a profile
// hiccup must not block the rest of the session lifecycle.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.phase != PhaseUninitialized {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseInitializing
	m.loading.Initial = true
	m.mu.Unlock()

	defer m.setLoading(OpInitial, false)

	m.unsubscribe = m.gw.Subscribe(m.handleEvent)

	sess, user, err := m.gw.CurrentSession(ctx)
	if err != nil {
		sess, user, err = m.gw.RefreshSession(ctx)
	}
	if err != nil {
		m.logger.Warn("session bootstrap failed", "error", err)
		m.mu.Lock()
		m.phase = PhaseAnonymous
		m.errMsg = err.Error()
		m.mu.Unlock()
		return
	}

	if sess == nil {
		m.mu.Lock()
		m.phase = PhaseAnonymous
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.phase = PhaseAuthenticated
	m.session = sess
	m.user = user
	m.mu.Unlock()

	m.resolveProfile(ctx, *user, sess.AccessToken, ColdStartTimeout, false)
}

// handleEvent reacts to the gateway's change stream. A new session
// re-resolves the profile on the steady-state deadline; a lost session
// drops the in-memory profile but leaves cache entries intact so a
// rapid re-login is cheap.
func (m *Manager) handleEvent(ev gateway.Event) {
	if ev.Session == nil || ev.User == nil {
		m.clearLocalState()
		return
	}

	m.mu.Lock()
	if m.user == nil || m.user.ID != ev.User.ID {
		m.resolveGen++
	}
	m.phase = PhaseAuthenticated
	m.session = ev.Session
	m.user = ev.User
	m.mu.Unlock()

	user := *ev.User
	token := ev.Session.AccessToken

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.resolveProfile(context.Background(), user, token, SteadyTimeout, false)
	}()
}

// RefreshProfile re-resolves the current user's profile on demand. It
// no-ops when signed out; deduplication is delegated entirely to the
// fetcher's guard.
func (m *Manager) RefreshProfile(ctx context.Context) {
	m.refreshProfile(ctx, false)
}

// EnsureProfile resolves the profile synchronously, invoked by the auth
// facade right after sign-in so the UI never renders a no-profile flash.
// When the event-driven resolution already holds the guard, this waits
// for that attempt and adopts its result instead of no-opping.
func (m *Manager) EnsureProfile(ctx context.Context) {
	m.refreshProfile(ctx, true)
}

func (m *Manager) refreshProfile(ctx context.Context, wait bool) {
	m.mu.Lock()
	if m.session == nil || m.user == nil {
		m.mu.Unlock()
		return
	}
	user := *m.user
	token := m.session.AccessToken
	m.mu.Unlock()

	m.resolveProfile(ctx, user, token, SteadyTimeout, wait)
}

func (m *Manager) resolveProfile(ctx context.Context, user gateway.User, token string, timeout time.Duration, wait bool) {
	m.mu.Lock()
	gen := m.resolveGen
	m.loading.Profile = true
	m.mu.Unlock()

	resolve := m.fetcher.Resolve
	if wait {
		resolve = m.fetcher.ResolveWait
	}
	p, err := resolve(ctx, user, token, timeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Discard stale completions: a sign-out or user switch moved the
	// epoch on, so this result belongs to state that no longer exists.
	if gen != m.resolveGen || m.user == nil || m.user.ID != user.ID {
		return
	}

	m.loading.Profile = false
	switch {
	case err != nil:
		m.errMsg = err.Error()
		m.logger.Warn("profile resolution failed", "user_id", user.ID, "error", err)
	case p != nil:
		m.profile = p
		m.errMsg = ""
	default:
		// Guard refused the fetch and nothing was cached; keep state.
	}
}

// SetAuthenticated installs a freshly issued session, used by the auth
// facade ahead of the change-stream callback.
func (m *Manager) SetAuthenticated(sess *gateway.Session, user *gateway.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user != nil && (m.user == nil || m.user.ID != user.ID) {
		m.resolveGen++
	}
	m.phase = PhaseAuthenticated
	m.session = sess
	m.user = user
}

// ClearLocalState drops session, user and profile synchronously. Cache
// entries for the prior user are intentionally retained.
func (m *Manager) ClearLocalState() {
	m.clearLocalState()
}

func (m *Manager) clearLocalState() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolveGen++
	m.phase = PhaseAnonymous
	m.session = nil
	m.user = nil
	m.profile = nil
	m.loading.Profile = false
}

// RecordError mirrors an operation failure into the shared error field.
func (m *Manager) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errMsg = err.Error()
}

func (m *Manager) setLoading(op Op, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op {
	case OpInitial:
		m.loading.Initial = active
	case OpSignIn:
		m.loading.SignIn = active
	case OpSignUp:
		m.loading.SignUp = active
	case OpSignOut:
		m.loading.SignOut = active
	case OpProfile:
		m.loading.Profile = active
	}
}

// SetLoading flips the flag owned by the given operation.
func (m *Manager) SetLoading(op Op, active bool) {
	m.setLoading(op, active)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		Phase:   m.phase,
		Err:     m.errMsg,
		Loading: m.loading,
	}
	if m.session != nil {
		sess := *m.session
		st.Session = &sess
	}
	if m.user != nil {
		user := *m.user
		st.User = &user
	}
	if m.profile != nil {
		p := *m.profile
		st.Profile = &p
	}
	return st
}

// Close detaches from the gateway's change stream and waits for any
// in-flight background resolution or revalidation to finish.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.wg.Wait()
	m.fetcher.Wait()
}
