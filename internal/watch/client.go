// Package watch is a terminal client that submits a download to a running
// server and follows it to completion.
package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lvcoi/ytmp4/internal/jobs"
)

// Client talks to the HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Submit starts a download and returns its id. quality <= 0 leaves the
// choice to the server.
func (c *Client) Submit(ctx context.Context, mediaURL string, quality int) (string, error) {
	payload := map[string]any{"url": mediaURL}
	if quality > 0 {
		payload["quality"] = quality
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/download", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		DownloadID string `json:"downloadId"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.DownloadID == "" {
		return "", fmt.Errorf("server returned no download id")
	}
	return out.DownloadID, nil
}

// Progress fetches the current state of id.
func (c *Client) Progress(ctx context.Context, id string) (jobs.State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/progress/"+url.PathEscape(id), nil)
	if err != nil {
		return jobs.State{}, err
	}
	var state jobs.State
	if err := c.do(req, &state); err != nil {
		return jobs.State{}, err
	}
	return state, nil
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
