package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func tokenJSON(t *testing.T, userID uuid.UUID, email string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"access_token":  "access-" + userID.String(),
		"refresh_token": "refresh-" + userID.String(),
		"expires_in":    3600,
		"user":          map[string]string{"id": userID.String(), "email": email},
	})
	if err != nil {
		t.Fatalf("marshal token response: %v", err)
	}
	return body
}

func TestHTTPClientPasswordSignIn(t *testing.T) {
	userID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("grant_type"); got != "password" {
			t.Fatalf("unexpected grant_type %q", got)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Fatalf("unexpected apikey header %q", got)
		}

		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode grant payload: %v", err)
		}
		if payload["email"] != "user@example.com" || payload["password"] != "secret" {
			t.Fatalf("unexpected payload %v", payload)
		}

		w.Write(tokenJSON(t, userID, "user@example.com"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.Client(), srv.URL, "anon-key")

	var events []Event
	unsubscribe := c.Subscribe(func(ev Event) { events = append(events, ev) })
	defer unsubscribe()

	sess, user, err := c.SignInWithPassword(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}
	if sess == nil || sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Fatalf("incomplete session: %+v", sess)
	}
	if user == nil || user.ID != userID || user.Email != "user@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if len(events) != 1 || events[0].Kind != EventSignedIn {
		t.Fatalf("expected one signed-in event, got %+v", events)
	}

	// The session is now held in memory.
	held, heldUser, err := c.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("CurrentSession returned error: %v", err)
	}
	if held == nil || held.AccessToken != sess.AccessToken || heldUser.ID != userID {
		t.Fatal("expected the issued session to be held")
	}
}

func TestHTTPClientRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.Client(), srv.URL, "anon-key")

	_, _, err := c.SignInWithPassword(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if sess, _, err := c.CurrentSession(context.Background()); err != nil || sess != nil {
		t.Fatalf("expected no session after rejected sign-in, got %+v err=%v", sess, err)
	}
}

func TestHTTPClientSignUpPendingConfirmation(t *testing.T) {
	userID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/signup" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		// Confirmation required: user record without tokens.
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]string{"id": userID.String(), "email": "new@example.com"},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.Client(), srv.URL, "anon-key")

	sess, user, err := c.SignUp(context.Background(), "new@example.com", "secret")
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected no session while pending confirmation, got %+v", sess)
	}
	if user == nil || user.ID != userID {
		t.Fatalf("expected the pending user to be returned, got %+v", user)
	}
}

func TestHTTPClientSignUpConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"msg":"User already registered"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.Client(), srv.URL, "anon-key")

	_, _, err := c.SignUp(context.Background(), "taken@example.com", "secret")
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestHTTPClientRefreshSession(t *testing.T) {
	userID := uuid.New()
	var grants []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grants = append(grants, r.URL.Query().Get("grant_type"))
		w.Write(tokenJSON(t, userID, "user@example.com"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.Client(), srv.URL, "anon-key")

	if _, _, err := c.RefreshSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession without a held refresh token, got %v", err)
	}

	if _, _, err := c.SignInWithPassword(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}

	var refreshEvents int
	unsubscribe := c.Subscribe(func(ev Event) {
		if ev.Kind == EventTokenRefreshed {
			refreshEvents++
		}
	})
	defer unsubscribe()

	sess, user, err := c.RefreshSession(context.Background())
	if err != nil {
		t.Fatalf("RefreshSession returned error: %v", err)
	}
	if sess == nil || user == nil || user.ID != userID {
		t.Fatalf("unexpected refreshed session %+v user %+v", sess, user)
	}
	if len(grants) != 2 || grants[1] != "refresh_token" {
		t.Fatalf("unexpected grant sequence %v", grants)
	}
	if refreshEvents != 1 {
		t.Fatalf("expected one token-refreshed event, got %d", refreshEvents)
	}
}

func TestHTTPClientSignOutDropsSessionDespiteProviderError(t *testing.T) {
	userID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/logout" {
			// Token already invalidated server-side; still a clean
			// local sign-out.
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write(tokenJSON(t, userID, "user@example.com"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.Client(), srv.URL, "anon-key")

	if _, _, err := c.SignInWithPassword(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}

	var signedOut bool
	unsubscribe := c.Subscribe(func(ev Event) {
		if ev.Kind == EventSignedOut {
			signedOut = true
			if ev.Session != nil || ev.User != nil {
				t.Error("sign-out event must not carry a session")
			}
		}
	})
	defer unsubscribe()

	if err := c.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}
	if !signedOut {
		t.Fatal("expected a signed-out event")
	}

	if sess, _, err := c.CurrentSession(context.Background()); err != nil || sess != nil {
		t.Fatalf("expected no held session after sign-out, got %+v err=%v", sess, err)
	}
}

func TestHTTPClientUnsubscribeStopsDelivery(t *testing.T) {
	userID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tokenJSON(t, userID, "user@example.com"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.Client(), srv.URL, "anon-key")

	var delivered int
	unsubscribe := c.Subscribe(func(Event) { delivered++ })
	unsubscribe()

	if _, _, err := c.SignInWithPassword(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", delivered)
	}
}
