package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fieldtrack/agent/pkg/trace"
)

// HTTPClient talks to the tracker backend's REST API.
type HTTPClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient for the given backend. The token
// is sent as a bearer credential when non-empty.
func NewHTTPClient(baseURL, apiToken string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchLatest retrieves the device's current fix. A missing fix (404 or
// null body) returns nil without error.
func (c *HTTPClient) FetchLatest(ctx context.Context, deviceID string) (trace.RawPoint, error) {
	var latest trace.RawPoint
	found, err := c.getJSON(ctx, "/devices/"+url.PathEscape(deviceID)+"/latest", &latest)
	if err != nil || !found {
		return nil, err
	}
	return latest, nil
}

// FetchHistory retrieves the device's recorded points, oldest first as
// the backend stores them. A device with no history returns an empty
// list without error.
func (c *HTTPClient) FetchHistory(ctx context.Context, deviceID string) ([]trace.RawPoint, error) {
	var history []trace.RawPoint
	if _, err := c.getJSON(ctx, "/devices/"+url.PathEscape(deviceID)+"/history", &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// getJSON performs a GET against the backend and decodes the body into
// v. It reports false without error when the resource does not exist.
func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return true, nil
}
