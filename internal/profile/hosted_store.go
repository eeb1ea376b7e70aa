package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// HostedStore implements Store against the managed backend's REST data
// API. Queries are scoped to the caller's session by forwarding the
// session access token as a bearer credential.
//
// Transient failures (429, 5xx, transport errors) are retried with a
// capped exponential backoff. When the direct insert is rejected for
// permissioning reasons the store falls back to the provisioning
// endpoint, which creates the row server-side with elevated rights.
type HostedStore struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	provision *ProvisionClient

	backoffBase time.Duration
	maxRetries  uint64
}

// HostedOption configures a HostedStore during construction.
type HostedOption func(*HostedStore)

// WithProvisionClient installs the fallback creation endpoint client.
func WithProvisionClient(pc *ProvisionClient) HostedOption {
	return func(s *HostedStore) {
		s.provision = pc
	}
}

// WithBackoff overrides the retry schedule, mainly for tests.
func WithBackoff(base time.Duration, maxRetries uint64) HostedOption {
	return func(s *HostedStore) {
		s.backoffBase = base
		s.maxRetries = maxRetries
	}
}

// NewHostedStore constructs a HostedStore.
func NewHostedStore(client *http.Client, baseURL, apiKey string, opts ...HostedOption) *HostedStore {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	s := &HostedStore{
		client:      client,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		backoffBase: 200 * time.Millisecond,
		maxRetries:  2,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// FetchByID queries the hosted profiles table for a single row.
// An empty result set is reported as (nil, nil).
func (s *HostedStore) FetchByID(ctx context.Context, id uuid.UUID, accessToken string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/profiles?id=eq.%s&limit=1", s.baseURL, url.QueryEscape(id.String()))

	var rows []Profile
	err := s.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		s.setHeaders(req, accessToken)

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if err := classifyStatus(resp); err != nil {
			return err
		}

		rows = rows[:0]
		if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
			return fmt.Errorf("decode profiles response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return &row, nil
}

// Insert creates the profile row. A 401/403 from the data API means the
// session lacks insert rights; in that case the provisioning endpoint is
// invoked and the freshly created row is fetched back.
func (s *HostedStore) Insert(ctx context.Context, p Profile, accessToken string) (Profile, error) {
	endpoint := s.baseURL + "/rest/v1/profiles"

	body, err := json.Marshal(p)
	if err != nil {
		return Profile{}, fmt.Errorf("encode profile: %w", err)
	}

	var created Profile
	err = s.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		s.setHeaders(req, accessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return errInsertForbidden
		}
		if err := classifyStatus(resp); err != nil {
			return err
		}

		var rows []Profile
		if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
			return fmt.Errorf("decode insert response: %w", err)
		}
		if len(rows) == 0 {
			created = p
			return nil
		}
		created = rows[0]
		return nil
	})

	if err == errInsertForbidden {
		return s.insertViaProvision(ctx, p, accessToken)
	}
	if err != nil {
		return Profile{}, err
	}

	return created, nil
}

func (s *HostedStore) insertViaProvision(ctx context.Context, p Profile, accessToken string) (Profile, error) {
	if s.provision == nil {
		return Profile{}, fmt.Errorf("profile insert forbidden and no provisioning endpoint configured")
	}

	if err := s.provision.Provision(ctx, accessToken); err != nil {
		return Profile{}, fmt.Errorf("provision profile: %w", err)
	}

	created, err := s.FetchByID(ctx, p.ID, accessToken)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch provisioned profile: %w", err)
	}
	if created == nil {
		return Profile{}, fmt.Errorf("provisioned profile %s not found", p.ID)
	}
	return *created, nil
}

func (s *HostedStore) do(ctx context.Context, op func(context.Context) error) error {
	b := retry.NewExponential(s.backoffBase)
	b = retry.WithCappedDuration(2*time.Second, b)
	b = retry.WithMaxRetries(s.maxRetries, b)
	return retry.Do(ctx, b, op)
}

func (s *HostedStore) setHeaders(req *http.Request, accessToken string) {
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}
	token := accessToken
	if token == "" {
		token = s.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

var errInsertForbidden = fmt.Errorf("profile insert forbidden")

// classifyStatus converts a non-success response into an error, marking
// throttled and server-side statuses as retryable.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("profile store returned status %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("profile store returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
