package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway is an in-process credential provider, ideal for local
// development or tests. Accounts are registered up front or through
// SignUp; sessions are plain random tokens with a fixed TTL.
type MemoryGateway struct {
	mu       sync.Mutex
	accounts map[string]memoryAccount
	token    *Session
	user     *User
	ttl      time.Duration
	nextSub  int
	subs     map[int]func(Event)
}

type memoryAccount struct {
	id       uuid.UUID
	password string
}

// NewMemoryGateway constructs an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		accounts: make(map[string]memoryAccount),
		ttl:      time.Hour,
		subs:     make(map[int]func(Event)),
	}
}

// Register seeds an account without emitting events.
func (g *MemoryGateway) Register(email, password string) uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.New()
	g.accounts[email] = memoryAccount{id: id, password: password}
	return id
}

// CurrentSession returns the held session, or (nil, nil, nil) when
// signed out.
func (g *MemoryGateway) CurrentSession(_ context.Context) (*Session, *User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token == nil {
		return nil, nil, nil
	}
	if time.Now().After(g.token.ExpiresAt) {
		return nil, nil, fmt.Errorf("current session: %w", ErrNoSession)
	}
	return copySession(g.token), copyUser(g.user), nil
}

// RefreshSession reissues the held session with a fresh expiry.
func (g *MemoryGateway) RefreshSession(_ context.Context) (*Session, *User, error) {
	g.mu.Lock()
	if g.token == nil {
		g.mu.Unlock()
		return nil, nil, ErrNoSession
	}
	g.token = g.issueLocked()
	sess, user := copySession(g.token), copyUser(g.user)
	g.mu.Unlock()

	g.emit(Event{Kind: EventTokenRefreshed, Session: sess, User: user})
	return sess, user, nil
}

// SignInWithPassword validates the pair against registered accounts.
func (g *MemoryGateway) SignInWithPassword(_ context.Context, email, password string) (*Session, *User, error) {
	g.mu.Lock()
	account, ok := g.accounts[email]
	if !ok || account.password != password {
		g.mu.Unlock()
		return nil, nil, ErrInvalidCredentials
	}
	g.user = &User{ID: account.id, Email: email}
	g.token = g.issueLocked()
	sess, user := copySession(g.token), copyUser(g.user)
	g.mu.Unlock()

	g.emit(Event{Kind: EventSignedIn, Session: sess, User: user})
	return sess, user, nil
}

// SignInWithIDToken accepts any token in dev mode and derives the
// account from the provider-qualified token string.
func (g *MemoryGateway) SignInWithIDToken(_ context.Context, provider, idToken string) (*Session, *User, error) {
	g.mu.Lock()
	g.user = &User{ID: uuid.New(), Email: fmt.Sprintf("%s-user@example.com", provider)}
	g.token = g.issueLocked()
	sess, user := copySession(g.token), copyUser(g.user)
	g.mu.Unlock()

	g.emit(Event{Kind: EventSignedIn, Session: sess, User: user})
	return sess, user, nil
}

// SignUp registers and immediately signs in.
func (g *MemoryGateway) SignUp(ctx context.Context, email, password string) (*Session, *User, error) {
	g.mu.Lock()
	if _, exists := g.accounts[email]; exists {
		g.mu.Unlock()
		return nil, nil, ErrUserExists
	}
	g.accounts[email] = memoryAccount{id: uuid.New(), password: password}
	g.mu.Unlock()

	return g.SignInWithPassword(ctx, email, password)
}

// SignOut drops the held session.
func (g *MemoryGateway) SignOut(_ context.Context) error {
	g.mu.Lock()
	g.token = nil
	g.user = nil
	g.mu.Unlock()

	g.emit(Event{Kind: EventSignedOut})
	return nil
}

// Subscribe registers a session change listener.
func (g *MemoryGateway) Subscribe(fn func(Event)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}

func (g *MemoryGateway) issueLocked() *Session {
	return &Session{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    time.Now().Add(g.ttl),
	}
}

func (g *MemoryGateway) emit(ev Event) {
	g.mu.Lock()
	listeners := make([]func(Event), 0, len(g.subs))
	for _, fn := range g.subs {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	copied := *s
	return &copied
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}
