package gateway

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryGatewaySignInLifecycle(t *testing.T) {
	g := NewMemoryGateway()
	id := g.Register("user@example.com", "secret")

	if _, _, err := g.SignInWithPassword(context.Background(), "user@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	sess, user, err := g.SignInWithPassword(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}
	if user.ID != id {
		t.Fatalf("expected registered account id %s, got %s", id, user.ID)
	}

	held, _, err := g.CurrentSession(context.Background())
	if err != nil || held == nil || held.AccessToken != sess.AccessToken {
		t.Fatalf("expected the issued session to be held, got %+v err=%v", held, err)
	}

	refreshed, _, err := g.RefreshSession(context.Background())
	if err != nil {
		t.Fatalf("RefreshSession returned error: %v", err)
	}
	if refreshed.AccessToken == sess.AccessToken {
		t.Fatal("expected a fresh access token after refresh")
	}

	if err := g.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}
	if held, _, err := g.CurrentSession(context.Background()); err != nil || held != nil {
		t.Fatalf("expected no session after sign-out, got %+v err=%v", held, err)
	}
}

func TestMemoryGatewaySignUp(t *testing.T) {
	g := NewMemoryGateway()
	g.Register("taken@example.com", "secret")

	if _, _, err := g.SignUp(context.Background(), "taken@example.com", "other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	var events []EventKind
	unsubscribe := g.Subscribe(func(ev Event) { events = append(events, ev.Kind) })
	defer unsubscribe()

	sess, user, err := g.SignUp(context.Background(), "new@example.com", "secret")
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if sess == nil || user == nil {
		t.Fatal("expected sign-up to issue a session immediately")
	}
	if len(events) != 1 || events[0] != EventSignedIn {
		t.Fatalf("expected one signed-in event, got %v", events)
	}
}
