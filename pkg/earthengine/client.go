// Package earthengine is a small client for the Earth Engine REST API.
// It serializes computation graphs as expressions and drives the
// compute, map, thumbnail and export endpoints used by the embedding
// pipeline.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
)

// DefaultBaseURL is the production Earth Engine REST endpoint.
const DefaultBaseURL = "https://earthengine.googleapis.com/v1"

const defaultTimeout = 5 * time.Minute

// Earth Engine computation plus Cloud Storage export.
var scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

type Client struct {
	project    string
	baseURL    string
	httpClient *http.Client
}

// NewClient authenticates and returns a client bound to a Cloud
// project. With a key file it uses the service account's JWT flow;
// with an empty path it falls back to application default credentials.
func NewClient(ctx context.Context, project, keyFile string) (*Client, error) {
	if project == "" {
		return nil, fmt.Errorf("project is required")
	}

	httpClient, err := authenticate(ctx, keyFile)
	if err != nil {
		return nil, err
	}

	return &Client{
		project:    project,
		baseURL:    DefaultBaseURL,
		httpClient: httpClient,
	}, nil
}

// NewClientWithHTTP builds a client on a caller-supplied HTTP client
// and base URL. Tests use it to point at a local server.
func NewClientWithHTTP(project, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		project:    project,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Project returns the Cloud project the client is bound to.
func (c *Client) Project() string {
	return c.project
}

func authenticate(ctx context.Context, keyFile string) (*http.Client, error) {
	if keyFile == "" {
		client, err := google.DefaultClient(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("application default credentials: %v", err)
		}
		return client, nil
	}

	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %v", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %v", err)
	}
	return cfg.Client(ctx), nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %v", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("earthengine returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
