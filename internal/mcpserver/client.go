package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/risklens/internal/audit"
)

// Config points the MCP server at a running RiskLens API. An empty APIURL
// leaves the API-backed tools unregistered.
type Config struct {
	APIURL string // e.g. "http://localhost:8001"
}

// APIClient reads from the RiskLens HTTP API.
type APIClient struct {
	base string
	http *http.Client
}

// NewAPIClient creates a client for cfg.APIURL.
func NewAPIClient(cfg Config) *APIClient {
	return &APIClient{
		base: strings.TrimRight(cfg.APIURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// getJSON fetches path and decodes a 2xx body into out. Error bodies in the
// API's {"error","message"} shape become "API error (status): message".
func (c *APIClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RecentVerdicts lists audited verdicts, newest first.
func (c *APIClient) RecentVerdicts(ctx context.Context, limit int) ([]audit.Entry, error) {
	path := "/v1/verdicts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var page struct {
		Verdicts []audit.Entry `json:"verdicts"`
	}
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Verdicts, nil
}
