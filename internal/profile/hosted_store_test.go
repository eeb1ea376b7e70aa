package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func hostedTestStore(t *testing.T, handler http.Handler, opts ...HostedOption) (*HostedStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]HostedOption{WithBackoff(time.Millisecond, 2)}, opts...)
	return NewHostedStore(srv.Client(), srv.URL, "anon-key", opts...), srv
}

func TestHostedStoreFetchByIDFound(t *testing.T) {
	id := uuid.New()
	var gotAuth string

	store, _ := hostedTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/profiles" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]Profile{{ID: id, Email: "user@example.com", Status: StatusActive}})
	}))

	p, err := store.FetchByID(context.Background(), id, "session-token")
	if err != nil {
		t.Fatalf("FetchByID returned error: %v", err)
	}
	if p == nil || p.ID != id {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if gotAuth != "Bearer session-token" {
		t.Fatalf("expected session token to be forwarded, got %q", gotAuth)
	}
}

func TestHostedStoreFetchByIDNotFound(t *testing.T) {
	store, _ := hostedTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))

	p, err := store.FetchByID(context.Background(), uuid.New(), "token")
	if err != nil {
		t.Fatalf("FetchByID returned error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected not-found to be (nil, nil), got %+v", p)
	}
}

func TestHostedStoreRetriesTransientFailure(t *testing.T) {
	id := uuid.New()
	var calls atomic.Int64

	store, _ := hostedTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]Profile{{ID: id}})
	}))

	p, err := store.FetchByID(context.Background(), id, "token")
	if err != nil {
		t.Fatalf("FetchByID returned error: %v", err)
	}
	if p == nil || p.ID != id {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
}

func TestHostedStoreDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int64

	store, _ := hostedTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad filter"))
	}))

	_, err := store.FetchByID(context.Background(), uuid.New(), "token")
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("expected status 400 error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry on 400, got %d calls", calls.Load())
	}
}

func TestHostedStoreInsertReturnsRepresentation(t *testing.T) {
	id := uuid.New()

	store, _ := hostedTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %q", r.Method)
		}
		if got := r.Header.Get("Prefer"); got != "return=representation" {
			t.Fatalf("expected representation preference, got %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]Profile{{ID: id, Email: "user@example.com"}})
	}))

	created, err := store.Insert(context.Background(), Profile{ID: id, Email: "user@example.com"}, "token")
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if created.ID != id {
		t.Fatalf("unexpected created profile: %+v", created)
	}
}

func TestHostedStoreInsertForbiddenFallsBackToProvision(t *testing.T) {
	id := uuid.New()
	var provisioned atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/profiles", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if !provisioned.Load() {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_ = json.NewEncoder(w).Encode([]Profile{{ID: id, Email: "user@example.com"}})
	})
	mux.HandleFunc("/provision", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer session-token" {
			t.Fatalf("expected bearer session token, got %q", got)
		}
		provisioned.Store(true)
		w.WriteHeader(http.StatusCreated)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	pc := NewProvisionClient(srv.Client(), srv.URL+"/provision")
	store := NewHostedStore(srv.Client(), srv.URL, "anon-key", WithBackoff(time.Millisecond, 2), WithProvisionClient(pc))

	created, err := store.Insert(context.Background(), Profile{ID: id, Email: "user@example.com"}, "session-token")
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if created.ID != id {
		t.Fatalf("unexpected created profile: %+v", created)
	}
	if !provisioned.Load() {
		t.Fatal("expected provisioning endpoint to be invoked")
	}
}

func TestProvisionClientSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("quota exhausted"))
	}))
	t.Cleanup(srv.Close)

	pc := NewProvisionClient(srv.Client(), srv.URL)
	err := pc.Provision(context.Background(), "token")
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("expected error body to be surfaced, got %v", err)
	}
}
