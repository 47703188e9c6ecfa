package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/model"
)

// PortfolioSource fetches the current brokerage holdings
type PortfolioSource interface {
	FetchHoldings(ctx context.Context) ([]model.Holding, error)
	IsConfigured() bool
}

// ScrapeClient implements PortfolioSource against the internal headless
// scrape service, which renders the brokerage page and returns the
// holdings table as structured JSON.
type ScrapeClient struct {
	httpClient   *http.Client
	serviceURL   string
	portfolioURL string
}

// NewScrapeClient creates a new scrape service client
func NewScrapeClient(cfg *config.ScrapeConfig) *ScrapeClient {
	return &ScrapeClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		serviceURL:   cfg.ServiceURL,
		portfolioURL: cfg.PortfolioURL,
	}
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	Holdings []struct {
		Symbol       string  `json:"symbol"`
		Name         string  `json:"name"`
		Quantity     float64 `json:"quantity"`
		AvgPrice     float64 `json:"avgPrice"`
		Price        float64 `json:"price"`
		DayChangePct float64 `json:"dayChangePct"`
	} `json:"holdings"`
	Error string `json:"error"`
}

// FetchHoldings scrapes the configured portfolio page and returns its
// holdings. Value and Weight are left to the caller to derive.
func (c *ScrapeClient) FetchHoldings(ctx context.Context) ([]model.Holding, error) {
	payload, err := json.Marshal(scrapeRequest{URL: c.portfolioURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("scrape service error: status %d: %s", resp.StatusCode, string(body))
	}

	var body scrapeResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	if body.Error != "" {
		return nil, fmt.Errorf("scrape failed: %s", body.Error)
	}
	if len(body.Holdings) == 0 {
		return nil, fmt.Errorf("scrape returned no holdings")
	}

	holdings := make([]model.Holding, 0, len(body.Holdings))
	for _, h := range body.Holdings {
		holdings = append(holdings, model.Holding{
			Symbol:       h.Symbol,
			Name:         h.Name,
			Quantity:     h.Quantity,
			AvgPrice:     h.AvgPrice,
			Price:        h.Price,
			Value:        h.Quantity * h.Price,
			DayChangePct: h.DayChangePct,
		})
	}
	return holdings, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ScrapeClient) IsConfigured() bool {
	return c.serviceURL != "" && c.portfolioURL != ""
}
