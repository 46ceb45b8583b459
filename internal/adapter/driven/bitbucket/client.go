// Package bitbucket implements the SCMHost port against the Bitbucket
// Cloud branch-restrictions API.
package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/buildwarden/buildwarden/internal/config"
	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SCMHost = (*Client)(nil)

const defaultBaseURL = "https://api.bitbucket.org/2.0"

// Client calls the Bitbucket branch-restrictions REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        config.Bitbucket
}

// NewClient creates a Client for the configured repository.
func NewClient(cfg config.Bitbucket) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		cfg:        cfg,
	}
}

// NewClientWithBaseURL creates a Client against a custom API endpoint.
// Intended for tests with an httptest server.
func NewClientWithBaseURL(cfg config.Bitbucket, baseURL string) *Client {
	client := NewClient(cfg)
	client.baseURL = baseURL
	return client
}

// restriction is the wire representation of a branch restriction.
type restriction struct {
	ID      int    `json:"id,omitempty"`
	Kind    string `json:"kind"`
	Pattern string `json:"pattern"`
}

// restrictionList is the paginated list envelope.
type restrictionList struct {
	Values []restriction `json:"values"`
}

// ListBranchRestrictions returns the repository's branch restrictions.
func (c *Client) ListBranchRestrictions(ctx context.Context) ([]model.BranchRestriction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restrictionsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}

	body, err := c.do(req, "list")
	if err != nil {
		return nil, err
	}

	var list restrictionList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode restriction list: %w", err)
	}

	restrictions := make([]model.BranchRestriction, 0, len(list.Values))
	for _, value := range list.Values {
		restrictions = append(restrictions, model.BranchRestriction{
			ID:      value.ID,
			Kind:    model.RestrictionKind(value.Kind),
			Pattern: value.Pattern,
		})
	}
	return restrictions, nil
}

// CreateBranchRestriction creates a new restriction.
func (c *Client) CreateBranchRestriction(ctx context.Context, br model.BranchRestriction) error {
	payload, err := json.Marshal(restriction{Kind: string(br.Kind), Pattern: br.Pattern})
	if err != nil {
		return fmt.Errorf("marshal restriction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restrictionsURL(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, "create")
	return err
}

// UpdateBranchRestriction updates an existing restriction in place.
func (c *Client) UpdateBranchRestriction(ctx context.Context, id int, br model.BranchRestriction) error {
	payload, err := json.Marshal(restriction{Kind: string(br.Kind), Pattern: br.Pattern})
	if err != nil {
		return fmt.Errorf("marshal restriction: %w", err)
	}

	url := fmt.Sprintf("%s/%d", c.restrictionsURL(), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, "update")
	return err
}

func (c *Client) restrictionsURL() string {
	return fmt.Sprintf("%s/repositories/%s/%s/branch-restrictions", c.baseURL, c.cfg.RepoUsername, c.cfg.RepoSlug)
}

// do executes the request and enforces the 200/201 success contract; any
// other status becomes a RestrictionError carrying the response body for
// diagnostics.
func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	if c.cfg.AuthUsername != "" && c.cfg.Password != "" {
		req.SetBasicAuth(c.cfg.AuthUsername, c.cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s branch restriction: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s branch restriction: read response: %w", operation, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return body, nil
	default:
		return nil, &model.RestrictionError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
}
