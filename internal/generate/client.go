package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client issues generation requests to {BaseURL}/api/chat/{SessionID}/{path}.
type Client struct {
	BaseURL   string
	SessionID string
	HTTP      *http.Client
}

// NewClient returns a Client using http.DefaultClient.
func NewClient(baseURL, sessionID string) *Client {
	return &Client{BaseURL: baseURL, SessionID: sessionID, HTTP: http.DefaultClient}
}

// Endpoint returns the full URL for a mode path.
func (c *Client) Endpoint(path string) (string, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		return "", fmt.Errorf("base URL is empty")
	}
	return url.JoinPath(base, "api", "chat", c.SessionID, path)
}

// Post sends body as JSON. The caller owns the response body.
func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	endpoint, err := c.Endpoint(path)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return httpClient.Do(req)
}
