package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SessionInfo describes a session as reported by the HTTP API.
type SessionInfo struct {
	SessionID   string `json:"session_id"`
	Language    string `json:"language"`
	CreatedAt   string `json:"created_at,omitempty"`
	ActiveUsers int    `json:"active_users"`
}

// HealthInfo is the health endpoint payload.
type HealthInfo struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RESTClient provides access to the session HTTP API.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a client for the API at baseURL, e.g.
// "http://localhost:8080".
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *RESTClient) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// CreateSession creates a new coding session for the given language.
func (c *RESTClient) CreateSession(ctx context.Context, language string) (*SessionInfo, error) {
	var resp SessionInfo
	if err := c.post(ctx, "/api/sessions", map[string]string{"language": language}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession retrieves a session and its current presence count.
func (c *RESTClient) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var resp SessionInfo
	if err := c.get(ctx, "/api/sessions/"+sessionID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server health endpoint.
func (c *RESTClient) Health(ctx context.Context) (*HealthInfo, error) {
	var resp HealthInfo
	if err := c.get(ctx, "/api/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTClient) post(ctx context.Context, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, dest)
}

func (c *RESTClient) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return c.do(req, dest)
}

func (c *RESTClient) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp apiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return fmt.Errorf("http error: %s (status %d)", string(body), resp.StatusCode)
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
