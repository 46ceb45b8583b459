// Package jenkins implements the BuildTrigger port against the Jenkins
// remote access API.
package jenkins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/buildwarden/buildwarden/internal/config"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BuildTrigger = (*Client)(nil)

// Client triggers branch job builds on a Jenkins instance.
type Client struct {
	httpClient *http.Client
	cfg        config.Jenkins
}

// NewClient creates a Client for the configured Jenkins instance.
func NewClient(cfg config.Jenkins) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
	}
}

// TriggerRebuild queues a build of the branch's job and returns the queue
// item location Jenkins reports, which identifies the pending build.
func (c *Client) TriggerRebuild(ctx context.Context, branch string) (string, error) {
	buildURL := fmt.Sprintf("%s/job/%s/build", c.cfg.BaseURL, url.PathEscape(branch))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, buildURL, nil)
	if err != nil {
		return "", fmt.Errorf("build rebuild request: %w", err)
	}
	if c.cfg.Username != "" && c.cfg.Password != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger rebuild of %s: %w", branch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("trigger rebuild of %s: status %d: %s", branch, resp.StatusCode, string(body))
	}

	// Jenkins returns the queue item URL in the Location header.
	queueItem := resp.Header.Get("Location")
	if queueItem == "" {
		queueItem = fmt.Sprintf("%s (queued)", branch)
	}
	return queueItem, nil
}
