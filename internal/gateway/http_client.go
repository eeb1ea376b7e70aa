package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// HTTPClient implements Gateway against the hosted provider's auth API.
// It holds the current session in memory and notifies subscribers on
// every transition, mirroring the change stream the provider's browser
// SDK exposes.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	apiKey  string

	mu      sync.Mutex
	token   *oauth2.Token
	user    *User
	nextSub int
	subs    map[int]func(Event)
}

// NewHTTPClient constructs an HTTPClient for the given provider base URL.
func NewHTTPClient(client *http.Client, baseURL, apiKey string) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		subs:    make(map[int]func(Event)),
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

// CurrentSession returns the session held in memory. Signed out is
// (nil, nil, nil); a held-but-expired session is an error so the caller
// can decide whether to refresh.
func (c *HTTPClient) CurrentSession(_ context.Context) (*Session, *User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return nil, nil, nil
	}
	if !c.token.Valid() {
		return nil, nil, fmt.Errorf("current session: %w", ErrNoSession)
	}
	return c.sessionLocked(), c.userLocked(), nil
}

// RefreshSession exchanges the held refresh token for a new session.
func (c *HTTPClient) RefreshSession(ctx context.Context) (*Session, *User, error) {
	c.mu.Lock()
	refreshToken := ""
	if c.token != nil {
		refreshToken = c.token.RefreshToken
	}
	c.mu.Unlock()

	if refreshToken == "" {
		return nil, nil, ErrNoSession
	}

	payload := map[string]string{"refresh_token": refreshToken}
	sess, user, err := c.grant(ctx, "refresh_token", payload)
	if err != nil {
		return nil, nil, err
	}

	c.emit(Event{Kind: EventTokenRefreshed, Session: sess, User: user})
	return sess, user, nil
}

// SignInWithPassword performs the provider's password grant.
func (c *HTTPClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, *User, error) {
	payload := map[string]string{"email": email, "password": password}
	sess, user, err := c.grant(ctx, "password", payload)
	if err != nil {
		return nil, nil, err
	}

	c.emit(Event{Kind: EventSignedIn, Session: sess, User: user})
	return sess, user, nil
}

// SignInWithIDToken exchanges a verified OIDC ID token for a session.
func (c *HTTPClient) SignInWithIDToken(ctx context.Context, provider, idToken string) (*Session, *User, error) {
	payload := map[string]string{"provider": provider, "id_token": idToken}
	sess, user, err := c.grant(ctx, "id_token", payload)
	if err != nil {
		return nil, nil, err
	}

	c.emit(Event{Kind: EventSignedIn, Session: sess, User: user})
	return sess, user, nil
}

// SignUp registers a new account. Providers that require email
// confirmation return the pending user without a session.
func (c *HTTPClient) SignUp(ctx context.Context, email, password string) (*Session, *User, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})

	resp, err := c.post(ctx, c.baseURL+"/auth/v1/signup", body, "")
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict {
		return nil, nil, ErrUserExists
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, providerError(resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, nil, fmt.Errorf("decode signup response: %w", err)
	}

	user, err := parseUser(tr)
	if err != nil {
		return nil, nil, err
	}

	// No access token means the account is pending confirmation.
	if tr.AccessToken == "" {
		return nil, user, nil
	}

	sess := c.store(tr, user)
	c.emit(Event{Kind: EventSignedIn, Session: sess, User: user})
	return sess, user, nil
}

// SignOut invalidates the held session with the provider and drops it
// locally regardless of the provider's answer.
func (c *HTTPClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	accessToken := ""
	if c.token != nil {
		accessToken = c.token.AccessToken
	}
	c.token = nil
	c.user = nil
	c.mu.Unlock()

	c.emit(Event{Kind: EventSignedOut})

	if accessToken == "" {
		return nil
	}

	resp, err := c.post(ctx, c.baseURL+"/auth/v1/logout", nil, accessToken)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		return providerError(resp)
	}
	return nil
}

// Subscribe registers a session change listener.
func (c *HTTPClient) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *HTTPClient) grant(ctx context.Context, grantType string, payload map[string]string) (*Session, *User, error) {
	body, _ := json.Marshal(payload)

	resp, err := c.post(ctx, c.baseURL+"/auth/v1/token?grant_type="+grantType, body, "")
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, nil, fmt.Errorf("%w", ErrInvalidCredentials)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, providerError(resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, nil, fmt.Errorf("decode token response: %w", err)
	}

	user, err := parseUser(tr)
	if err != nil {
		return nil, nil, err
	}

	return c.store(tr, user), user, nil
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body []byte, bearer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	return resp, nil
}

// store records the freshly issued session and returns a snapshot of it.
func (c *HTTPClient) store(tr tokenResponse, user *User) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	c.user = user

	return c.sessionLocked()
}

func (c *HTTPClient) sessionLocked() *Session {
	return &Session{
		AccessToken:  c.token.AccessToken,
		RefreshToken: c.token.RefreshToken,
		ExpiresAt:    c.token.Expiry,
	}
}

func (c *HTTPClient) userLocked() *User {
	if c.user == nil {
		return nil
	}
	copied := *c.user
	return &copied
}

func (c *HTTPClient) emit(ev Event) {
	c.mu.Lock()
	listeners := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func parseUser(tr tokenResponse) (*User, error) {
	id, err := uuid.Parse(tr.User.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", tr.User.ID, err)
	}
	return &User{ID: id, Email: tr.User.Email}, nil
}

func providerError(resp *http.Response) error {
	var er errorResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err := json.Unmarshal(body, &er); err == nil {
		msg := er.ErrorDescription
		if msg == "" {
			msg = er.Message
		}
		if msg == "" {
			msg = er.Error
		}
		if msg != "" {
			return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, msg)
		}
	}
	return fmt.Errorf("provider returned status %d", resp.StatusCode)
}
