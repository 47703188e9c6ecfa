package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/model"
)

// Publisher pushes finished posts and portfolio snapshots to the blog API
type Publisher interface {
	CreatePost(ctx context.Context, post *model.Post) error
	CreateSnapshot(ctx context.Context, snapshot *model.PortfolioSnapshot) error
	IsConfigured() bool
}

// BlogClient implements Publisher against the blog's content API
type BlogClient struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	log        zerolog.Logger
}

// NewBlogClient creates a new blog API client
func NewBlogClient(cfg *config.BlogConfig, log zerolog.Logger) *BlogClient {
	return &BlogClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		log:      log,
	}
}

// CreatePost publishes a post. An already-published slug is not an
// error: reruns of the same day must stay idempotent.
func (c *BlogClient) CreatePost(ctx context.Context, post *model.Post) error {
	if err := c.post(ctx, "/api/posts", post); err != nil {
		if isDuplicate(err) {
			c.log.Debug().Str("slug", post.Slug).Str("lang", post.Lang).Msg("post already published, skipping")
			return nil
		}
		return fmt.Errorf("failed to publish post %s: %w", post.Slug, err)
	}
	return nil
}

// CreateSnapshot publishes a portfolio snapshot. Duplicate dates are
// tolerated the same way duplicate slugs are.
func (c *BlogClient) CreateSnapshot(ctx context.Context, snapshot *model.PortfolioSnapshot) error {
	if err := c.post(ctx, "/api/portfolio/snapshots", snapshot); err != nil {
		if isDuplicate(err) {
			c.log.Debug().Str("date", snapshot.Date).Msg("snapshot already published, skipping")
			return nil
		}
		return fmt.Errorf("failed to publish snapshot for %s: %w", snapshot.Date, err)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *BlogClient) IsConfigured() bool {
	return c.baseURL != "" && c.apiToken != ""
}

type duplicateError struct {
	body string
}

func (e *duplicateError) Error() string {
	return fmt.Sprintf("duplicate resource: %s", e.body)
}

func isDuplicate(err error) bool {
	var dup *duplicateError
	return errors.As(err, &dup)
}

func (c *BlogClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &duplicateError{body: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
