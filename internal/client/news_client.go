package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/model"
)

// NewsSource searches recent news articles for a topic
type NewsSource interface {
	Search(ctx context.Context, query string, since time.Time, limit int) ([]model.NewsItem, error)
	IsConfigured() bool
}

// NewsClient implements NewsSource against a NewsAPI-compatible endpoint
type NewsClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewNewsClient creates a new news search client
func NewNewsClient(cfg *config.NewsConfig) *NewsClient {
	return &NewsClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
	}
}

type newsSearchResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// Search returns up to limit articles matching query, published after since
func (c *NewsClient) Search(ctx context.Context, query string, since time.Time, limit int) ([]model.NewsItem, error) {
	if limit <= 0 {
		limit = 5
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("from", since.UTC().Format(time.RFC3339))
	q.Set("sortBy", "relevancy")
	q.Set("language", "en")
	q.Set("pageSize", strconv.Itoa(limit))

	headers := map[string]string{"X-Api-Key": c.apiKey}

	var body newsSearchResponse
	if err := getJSON(ctx, c.httpClient, c.baseURL+"/v2/everything?"+q.Encode(), headers, &body); err != nil {
		return nil, fmt.Errorf("news search failed: %w", err)
	}
	if body.Status != "ok" {
		return nil, fmt.Errorf("news search failed: %s (%s)", body.Message, body.Code)
	}

	items := make([]model.NewsItem, 0, len(body.Articles))
	for _, a := range body.Articles {
		if a.Title == "" {
			continue
		}
		items = append(items, model.NewsItem{
			Title:   a.Title,
			URL:     a.URL,
			Source:  a.Source.Name,
			Snippet: a.Description,
		})
	}
	return items, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *NewsClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != ""
}
