package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"beacon/pkg/types"
)

// SyncClient exchanges presence state with the server. Injectable so tests
// and alternative transports can substitute their own implementation.
type SyncClient interface {
	FetchSnapshot(ctx context.Context) ([]*types.UserPresence, error)
	PushHeartbeat(ctx context.Context, hb *types.Heartbeat) error
	PushStatus(ctx context.Context, userID string, status types.Status) error
}

// HTTPSyncClient talks to the beacond presence API.
type HTTPSyncClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPSyncClient builds a sync client for the given server base URL,
// for example "http://localhost:3000". The token is optional and sent as a
// bearer credential when set.
func NewHTTPSyncClient(baseURL, token string) *HTTPSyncClient {
	return &HTTPSyncClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type snapshotResponse struct {
	Users []*types.UserPresence `json:"users"`
	Count int                   `json:"count"`
}

func (c *HTTPSyncClient) FetchSnapshot(ctx context.Context) ([]*types.UserPresence, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/presence", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot fetch returned status %d", resp.StatusCode)
	}

	var body snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return body.Users, nil
}

func (c *HTTPSyncClient) PushHeartbeat(ctx context.Context, hb *types.Heartbeat) error {
	return c.post(ctx, "/api/presence/heartbeat", hb)
}

func (c *HTTPSyncClient) PushStatus(ctx context.Context, userID string, status types.Status) error {
	payload := map[string]interface{}{
		"user_id": userID,
		"status":  status,
	}
	return c.post(ctx, "/api/presence/status", payload)
}

func (c *HTTPSyncClient) post(ctx context.Context, path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s returned status %d", path, resp.StatusCode)
	}
	return nil
}

func (c *HTTPSyncClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

var _ SyncClient = (*HTTPSyncClient)(nil)
