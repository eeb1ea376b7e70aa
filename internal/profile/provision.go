package profile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProvisionClient calls the server-side profile creation endpoint. It is
// the fallback path for sessions whose data-API role cannot insert into
// the profiles table directly.
type ProvisionClient struct {
	client   *http.Client
	endpoint string
}

// NewProvisionClient constructs a ProvisionClient.
func NewProvisionClient(client *http.Client, endpoint string) *ProvisionClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ProvisionClient{client: client, endpoint: endpoint}
}

// Provision asks the endpoint to create the caller's profile row. The
// session access token identifies whose profile to create.
func (c *ProvisionClient) Provision(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("create provision request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call provision endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provision endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
