// Package client talks to a running nudge server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/lazypower/nudge/internal/engine"
	"github.com/lazypower/nudge/internal/server"
)

const (
	defaultServerURL = "http://127.0.0.1:37780"
	httpTimeout      = 5 * time.Second
	completeTimeout  = 2 * time.Minute // upper bound for /api/complete
)

// StatusError is returned when the server answers with a 4xx or 5xx.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the nudge server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL.
func New(serverURL string) *Client {
	return &Client{
		http:      &http.Client{Timeout: completeTimeout},
		serverURL: serverURL,
	}
}

// FromEnv respects NUDGE_URL, falling back to http://127.0.0.1:37780.
func FromEnv() *Client {
	u := os.Getenv("NUDGE_URL")
	if u == "" {
		u = defaultServerURL
	}
	return New(u)
}

// URL returns the server base URL.
func (c *Client) URL() string { return c.serverURL }

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// do sends a request with an optional JSON body and decodes a JSON answer
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func taskPath(taskID string) string {
	return "/api/tasks/" + url.PathEscape(taskID)
}

// RecordInteraction posts one interaction and returns the suggestion, if any.
func (c *Client) RecordInteraction(ctx context.Context, taskID string, in server.InteractionRequest) (*engine.Suggestion, error) {
	var resp server.InteractionResponse
	if err := c.do(ctx, http.MethodPost, taskPath(taskID)+"/interactions", in, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestion, nil
}

// LastSuggestion returns the task's latest suggestion, or nil when there is none.
func (c *Client) LastSuggestion(ctx context.Context, taskID string) (*engine.Suggestion, error) {
	var s engine.Suggestion
	err := c.do(ctx, http.MethodGet, taskPath(taskID)+"/suggestion", nil, &s)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ResetTaskHistory forgets a task on the server.
func (c *Client) ResetTaskHistory(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, taskPath(taskID), nil, nil)
}

// OrganizeBrainDump submits a brain dump.
func (c *Client) OrganizeBrainDump(ctx context.Context, in server.BrainDumpRequest) (engine.BrainDumpResult, error) {
	var res engine.BrainDumpResult
	err := c.do(ctx, http.MethodPost, "/api/braindump", in, &res)
	return res, err
}

// State fetches the server's state snapshot.
func (c *Client) State(ctx context.Context) (engine.GlobalState, error) {
	var st engine.GlobalState
	err := c.do(ctx, http.MethodGet, "/api/state", nil, &st)
	return st, err
}

// SetAPIKey stores key on the server; an empty key clears it.
func (c *Client) SetAPIKey(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPut, "/api/credentials", server.CredentialsRequest{APIKey: key}, nil)
}

// KeyConfigured reports whether the server has a stored key.
func (c *Client) KeyConfigured(ctx context.Context) (bool, error) {
	var resp struct {
		Configured bool `json:"configured"`
	}
	err := c.do(ctx, http.MethodGet, "/api/credentials", nil, &resp)
	return resp.Configured, err
}

// Complete sends a raw completion request through the server.
func (c *Client) Complete(ctx context.Context, in server.CompleteRequest) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodPost, "/api/complete", in, &resp)
	return resp.Text, err
}
