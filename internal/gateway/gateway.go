// Package gateway abstracts the hosted credential provider: session
// issuance, password and ID-token grants, and a change-notification
// stream consumed by the session manager.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is the opaque credential issued by the provider. The core
// holds it as-is and treats it as immutable until replaced wholesale.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// User identifies the authenticated account behind a session. A non-nil
// Session always carries a non-nil User.
type User struct {
	ID    uuid.UUID
	Email string
}

// EventKind names a session lifecycle transition.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
)

// Event is delivered to subscribers whenever the provider-side session
// changes. Session and User are nil for EventSignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
	User    *User
}

// Sentinel errors for provider responses the facade translates into
// user-facing failures.
var (
	// ErrInvalidCredentials is returned when the provider rejects the
	// supplied email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserExists is returned when a sign-up collides with an
	// existing account.
	ErrUserExists = errors.New("an account with this email already exists")
	// ErrNoSession is returned when no session is currently held.
	ErrNoSession = errors.New("no active session")
)

// Gateway is the credential provider surface the core consumes.
type Gateway interface {
	// CurrentSession returns the session held right now, or
	// (nil, nil, nil) when signed out.
	CurrentSession(ctx context.Context) (*Session, *User, error)
	// RefreshSession exchanges the refresh token for a fresh session.
	RefreshSession(ctx context.Context) (*Session, *User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, *User, error)
	// SignInWithIDToken exchanges a verified OIDC ID token for a session.
	SignInWithIDToken(ctx context.Context, provider, idToken string) (*Session, *User, error)
	SignUp(ctx context.Context, email, password string) (*Session, *User, error)
	SignOut(ctx context.Context) error
	// Subscribe registers a listener for session change events and
	// returns a function that removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}
