package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/model"
)

// Image batch states returned by the provider
const (
	ImageStatePending   = "BATCH_STATE_PENDING"
	ImageStateRunning   = "BATCH_STATE_RUNNING"
	ImageStateSucceeded = "BATCH_STATE_SUCCEEDED"
	ImageStateFailed    = "BATCH_STATE_FAILED"
	ImageStateCancelled = "BATCH_STATE_CANCELLED"
	ImageStateExpired   = "BATCH_STATE_EXPIRED"
)

// ImageRequest is one prompt of an image batch. Key is the correlation id;
// some result transports drop it.
type ImageRequest struct {
	Key    string
	Prompt string
}

// ImageResult is the normalized per-request image payload (base64 data
// plus mime type), carried inside model.BatchResult bodies.
type ImageResult struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ImageBatcher is the narrow contract for the name-keyed image batch
// endpoint: create/find a job by display name, poll it, fetch results.
type ImageBatcher interface {
	CreateBatch(ctx context.Context, displayName string, requests []ImageRequest) (string, error)
	FindBatch(ctx context.Context, displayName string) (string, error)
	BatchState(ctx context.Context, name string) (string, error)
	BatchResults(ctx context.Context, name string) ([]model.BatchResult, error)
	DeleteBatch(ctx context.Context, name string) error
	IsConfigured() bool
}

// GeminiClient implements ImageBatcher against the Gemini batch API
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	log        zerolog.Logger
}

// NewGeminiClient creates a new image batch client
func NewGeminiClient(cfg *config.ImageGenConfig, log zerolog.Logger) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		log:     log,
	}
}

type inlinedRequest struct {
	Request  json.RawMessage   `json:"request"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type batchOperation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		DisplayName string `json:"displayName"`
		State       string `json:"state"`
	} `json:"metadata"`
	Response *struct {
		InlinedResponses *struct {
			InlinedResponses []inlinedResponse `json:"inlinedResponses"`
		} `json:"inlinedResponses"`
		ResponsesFile string `json:"responsesFile"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type inlinedResponse struct {
	Metadata map[string]string `json:"metadata"`
	Response *generateResponse `json:"response"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *ImageResult `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// CreateBatch submits one image batch under the given display name and
// returns the provider-assigned operation name.
func (c *GeminiClient) CreateBatch(ctx context.Context, displayName string, requests []ImageRequest) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("image batch needs at least one request")
	}

	inlined := make([]inlinedRequest, 0, len(requests))
	for _, r := range requests {
		req := map[string]interface{}{
			"contents": []map[string]interface{}{
				{"parts": []map[string]string{{"text": r.Prompt}}},
			},
			"generationConfig": map[string]interface{}{
				"responseModalities": []string{"IMAGE"},
			},
		}
		reqBytes, err := json.Marshal(req)
		if err != nil {
			return "", fmt.Errorf("failed to marshal image request: %w", err)
		}
		entry := inlinedRequest{Request: reqBytes}
		if r.Key != "" {
			entry.Metadata = map[string]string{"key": r.Key}
		}
		inlined = append(inlined, entry)
	}

	body := map[string]interface{}{
		"batch": map[string]interface{}{
			"displayName": displayName,
			"inputConfig": map[string]interface{}{
				"requests": map[string]interface{}{
					"requests": inlined,
				},
			},
		},
	}

	var op batchOperation
	path := fmt.Sprintf("/v1beta/models/%s:batchGenerateContent", c.model)
	if err := c.doRequest(ctx, http.MethodPost, path, body, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("image batch create returned no name")
	}

	c.log.Debug().Str("name", op.Name).Str("display_name", displayName).Int("requests", len(requests)).Msg("imagegen: batch created")
	return op.Name, nil
}

// FindBatch looks up an existing batch by display name; returns the empty
// string when none exists.
func (c *GeminiClient) FindBatch(ctx context.Context, displayName string) (string, error) {
	var list struct {
		Operations []batchOperation `json:"operations"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1beta/batches?pageSize=100", nil, &list); err != nil {
		return "", err
	}

	for _, op := range list.Operations {
		if op.Metadata.DisplayName == displayName {
			return op.Name, nil
		}
	}
	return "", nil
}

// BatchState returns the raw provider state string for the operation
func (c *GeminiClient) BatchState(ctx context.Context, name string) (string, error) {
	var op batchOperation
	if err := c.doRequest(ctx, http.MethodGet, "/v1beta/"+name, nil, &op); err != nil {
		return "", err
	}
	if op.Metadata.State == "" && op.Done {
		if op.Error != nil {
			return ImageStateFailed, nil
		}
		return ImageStateSucceeded, nil
	}
	return op.Metadata.State, nil
}

// BatchResults fetches the operation and normalizes its per-request
// results. Inline responses keep their correlation keys; file-backed
// responses are downloaded from the provider and carry no keys.
func (c *GeminiClient) BatchResults(ctx context.Context, name string) ([]model.BatchResult, error) {
	var op batchOperation
	if err := c.doRequest(ctx, http.MethodGet, "/v1beta/"+name, nil, &op); err != nil {
		return nil, err
	}
	if op.Response == nil {
		return nil, fmt.Errorf("image batch %s has no response payload", name)
	}

	if op.Response.InlinedResponses != nil {
		results := make([]model.BatchResult, 0, len(op.Response.InlinedResponses.InlinedResponses))
		for _, inl := range op.Response.InlinedResponses.InlinedResponses {
			results = append(results, normalizeImageResponse(inl.Metadata["key"], inl.Response, errMessage(inl.Error)))
		}
		return results, nil
	}

	if op.Response.ResponsesFile != "" {
		return c.downloadResults(ctx, op.Response.ResponsesFile)
	}

	return nil, fmt.Errorf("image batch %s returned neither inline nor file results", name)
}

// downloadResults pulls a file-backed result set from object storage; its
// JSONL lines arrive in provider order without correlation metadata.
func (c *GeminiClient) downloadResults(ctx context.Context, fileURI string) ([]model.BatchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create results download request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image results download failed: status %d", resp.StatusCode)
	}

	var results []model.BatchResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry inlinedResponse
		if err := json.Unmarshal(line, &entry); err != nil {
			results = append(results, model.BatchResult{Err: fmt.Sprintf("unparsable result line: %v", err)})
			continue
		}
		results = append(results, normalizeImageResponse(entry.Metadata["key"], entry.Response, errMessage(entry.Error)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image results: %w", err)
	}
	return results, nil
}

// DeleteBatch removes a finished batch operation on the provider side
func (c *GeminiClient) DeleteBatch(ctx context.Context, name string) error {
	return c.doRequest(ctx, http.MethodDelete, "/v1beta/"+name, nil, nil)
}

func normalizeImageResponse(key string, resp *generateResponse, errMsg string) model.BatchResult {
	result := model.BatchResult{CustomID: key}
	if errMsg != "" {
		result.Err = errMsg
		return result
	}
	if resp == nil {
		result.Err = "result carries no response"
		return result
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				body, err := json.Marshal(part.InlineData)
				if err != nil {
					result.Err = fmt.Sprintf("failed to marshal image payload: %v", err)
					return result
				}
				result.Body = body
				return result
			}
		}
	}
	result.Err = "response contains no image data"
	return result
}

func errMessage(e *struct {
	Message string `json:"message"`
}) string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return "request failed"
	}
	return e.Message
}

// doRequest sends a JSON request to the provider and parses the response
func (c *GeminiClient) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image batch API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != "" && c.model != ""
}
