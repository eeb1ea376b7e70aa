// Package auth is the operation surface the dashboard calls: sign in,
// sign up, sign out and profile refresh. It delegates to the session
// manager and the credential gateway, translating provider errors into
// the small taxonomy the UI understands.
package auth

import (
	"context"
	"errors"

	"log/slog"

	"github.com/natalyineu/db-sub000/internal/gateway"
	"github.com/natalyineu/db-sub000/internal/session"
)

// Service is the auth facade.
type Service struct {
	gw      gateway.Gateway
	manager *session.Manager
	logger  *slog.Logger
}

// NewService creates the facade.
func NewService(gw gateway.Gateway, manager *session.Manager, logger *slog.Logger) *Service {
	return &Service{gw: gw, manager: manager, logger: logger}
}

// SignIn authenticates with an email/password pair. On success the
// session is installed immediately and the profile is ensured
// synchronously, ahead of the change-stream callback, so the UI never
// sees a flash of "no profile".
func (s *Service) SignIn(ctx context.Context, email, password string) error {
	s.manager.SetLoading(session.OpSignIn, true)
	defer s.manager.SetLoading(session.OpSignIn, false)

	sess, user, err := s.gw.SignInWithPassword(ctx, email, password)
	if err != nil {
		mapped := translateGatewayError(err)
		s.manager.RecordError(mapped)
		return mapped
	}

	s.manager.SetAuthenticated(sess, user)
	s.manager.EnsureProfile(ctx)
	return nil
}

// SignUp registers a new account. Providers that require email
// confirmation return success without a session; the change stream
// takes over once the account is confirmed.
func (s *Service) SignUp(ctx context.Context, email, password string) error {
	s.manager.SetLoading(session.OpSignUp, true)
	defer s.manager.SetLoading(session.OpSignUp, false)

	sess, user, err := s.gw.SignUp(ctx, email, password)
	if err != nil {
		mapped := translateGatewayError(err)
		s.manager.RecordError(mapped)
		return mapped
	}

	if sess != nil {
		s.manager.SetAuthenticated(sess, user)
	}
	return nil
}

// SignOut clears local state first, then asks the gateway to invalidate
// the session; the UI-facing transition happens optimistically before
// the network call resolves.
func (s *Service) SignOut(ctx context.Context) error {
	s.manager.SetLoading(session.OpSignOut, true)
	defer s.manager.SetLoading(session.OpSignOut, false)

	s.manager.ClearLocalState()

	if err := s.gw.SignOut(ctx); err != nil {
		mapped := translateGatewayError(err)
		s.manager.RecordError(mapped)
		return mapped
	}
	return nil
}

// SignInWithIDToken exchanges a verified OIDC ID token (e.g. from the
// Google consent flow) for a gateway session.
func (s *Service) SignInWithIDToken(ctx context.Context, provider, idToken string) error {
	s.manager.SetLoading(session.OpSignIn, true)
	defer s.manager.SetLoading(session.OpSignIn, false)

	sess, user, err := s.gw.SignInWithIDToken(ctx, provider, idToken)
	if err != nil {
		mapped := translateGatewayError(err)
		s.manager.RecordError(mapped)
		return mapped
	}

	s.manager.SetAuthenticated(sess, user)
	s.manager.EnsureProfile(ctx)
	return nil
}

// RefreshProfile triggers a manual profile re-resolution. Deduplication
// is handled by the fetch guard; a refused attempt is a silent no-op.
func (s *Service) RefreshProfile(ctx context.Context) {
	s.manager.RefreshProfile(ctx)
}

// Snapshot exposes the manager's current state.
func (s *Service) Snapshot() session.State {
	return s.manager.Snapshot()
}

func translateGatewayError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrInvalidCredentials):
		return &session.CredentialError{Code: session.CredentialCodeInvalid, Message: "invalid email or password"}
	case errors.Is(err, gateway.ErrUserExists):
		return &session.CredentialError{Code: session.CredentialCodeUserExists, Message: "an account with this email already exists"}
	default:
		return &session.CredentialError{Code: session.CredentialCodeProviderUnavailable, Message: "the sign-in service is temporarily unavailable"}
	}
}
