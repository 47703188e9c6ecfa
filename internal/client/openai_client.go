package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/model"
)

// BatchCompleter is the narrow contract the orchestrator needs from the
// completion endpoint: submit an artifact, poll a job, fetch its results,
// plus small synchronous completions.
type BatchCompleter interface {
	SubmitBatch(ctx context.Context, artifactPath string) (string, error)
	BatchStatus(ctx context.Context, jobID string) (string, error)
	BatchResults(ctx context.Context, jobID string) ([]model.BatchResult, error)
	ChatBatchLine(customID, system, user string, schemaName string, schema interface{}, maxTokens int) ([]byte, error)
	ChatCompletion(ctx context.Context, system, user string) (string, error)
	IsConfigured() bool
}

// OpenAIClient implements BatchCompleter against the OpenAI Files + Batches API
type OpenAIClient struct {
	api    openai.Client
	model  string
	window string
	apiKey string
}

// NewOpenAIClient creates a new completion-endpoint client
func NewOpenAIClient(cfg *config.OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	window := cfg.CompletionWindow
	if window == "" {
		window = "24h"
	}

	return &OpenAIClient{
		api:    openai.NewClient(opts...),
		model:  cfg.Model,
		window: window,
		apiKey: cfg.APIKey,
	}
}

// batchRequestLine is one JSONL record of the batch submission artifact
type batchRequestLine struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body"`
}

// batchOutputLine is one JSONL record of a batch output/error file
type batchOutputLine struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// chatCompletionBody mirrors the chat completion response embedded in a
// batch output line; only the fields the demux path needs.
type chatCompletionBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatBatchLine renders one chat-completion batch request tagged with its
// correlation id, asking for a structured response matching schema.
func (c *OpenAIClient) ChatBatchLine(customID, system, user string, schemaName string, schema interface{}, maxTokens int) ([]byte, error) {
	body := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"max_tokens": maxTokens,
		"response_format": map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   schemaName,
				"schema": schema,
				"strict": true,
			},
		},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request body: %w", err)
	}

	line, err := json.Marshal(batchRequestLine{
		CustomID: customID,
		Method:   "POST",
		URL:      "/v1/chat/completions",
		Body:     bodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request line: %w", err)
	}
	return line, nil
}

// SubmitBatch uploads the JSONL artifact and creates a batch job over it,
// returning the external job id.
func (c *OpenAIClient) SubmitBatch(ctx context.Context, artifactPath string) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("openai model not configured")
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("failed to open batch artifact: %w", err)
	}
	defer f.Close()

	file, err := c.api.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(f, filepath.Base(artifactPath), "application/jsonl"),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload batch artifact: %w", err)
	}

	batch, err := c.api.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      file.ID,
		Endpoint:         openai.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: openai.BatchNewParamsCompletionWindow(c.window),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create batch: %w", err)
	}

	return batch.ID, nil
}

// BatchStatus returns the raw external status string for the job
func (c *OpenAIClient) BatchStatus(ctx context.Context, jobID string) (string, error) {
	batch, err := c.api.Batches.Get(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to get batch %s: %w", jobID, err)
	}
	return string(batch.Status), nil
}

// BatchResults fetches and normalizes the job's per-request results: the
// output file yields one result per line with the chat message content as
// body, the error file yields one errored result per line.
func (c *OpenAIClient) BatchResults(ctx context.Context, jobID string) ([]model.BatchResult, error) {
	batch, err := c.api.Batches.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", jobID, err)
	}

	var results []model.BatchResult
	if batch.OutputFileID != "" {
		lines, err := c.fileLines(ctx, batch.OutputFileID)
		if err != nil {
			return nil, err
		}
		results = append(results, lines...)
	}
	if batch.ErrorFileID != "" {
		lines, err := c.fileLines(ctx, batch.ErrorFileID)
		if err != nil {
			return nil, err
		}
		results = append(results, lines...)
	}
	return results, nil
}

// fileLines downloads a batch result file and parses its JSONL records
func (c *OpenAIClient) fileLines(ctx context.Context, fileID string) ([]model.BatchResult, error) {
	res, err := c.api.Files.Content(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch batch file %s: %w", fileID, err)
	}
	defer res.Body.Close()

	var results []model.BatchResult
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var out batchOutputLine
		if err := json.Unmarshal(line, &out); err != nil {
			results = append(results, model.BatchResult{Err: fmt.Sprintf("unparsable result line: %v", err)})
			continue
		}
		results = append(results, normalizeOutputLine(out))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", fileID, err)
	}
	return results, nil
}

// normalizeOutputLine reduces a raw output record to correlation id plus
// either the model's message content or an error string.
func normalizeOutputLine(out batchOutputLine) model.BatchResult {
	result := model.BatchResult{CustomID: out.CustomID}

	if out.Error != nil {
		result.Err = fmt.Sprintf("%s: %s", out.Error.Code, out.Error.Message)
		return result
	}
	if out.Response == nil {
		result.Err = "result carries no response"
		return result
	}
	if out.Response.StatusCode != 0 && out.Response.StatusCode != 200 {
		result.Err = fmt.Sprintf("request failed with status %d", out.Response.StatusCode)
		return result
	}

	var body chatCompletionBody
	if err := json.Unmarshal(out.Response.Body, &body); err != nil || len(body.Choices) == 0 {
		result.Err = "response body is not a chat completion"
		return result
	}
	result.Body = []byte(body.Choices[0].Message.Content)
	return result
}

// ChatCompletion runs one synchronous completion and returns the text content
func (c *OpenAIClient) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("openai client not configured")
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(1024),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != "" && c.model != ""
}

// GenerateSchema reflects a JSON schema for structured batch responses
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// ReadArtifactFirstLine parses the first record of a JSONL artifact,
// verifying the file is submittable before upload.
func ReadArtifactFirstLine(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 1024*1024)
	line, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if len(line) == 0 {
		return fmt.Errorf("artifact is empty")
	}

	var first batchRequestLine
	if err := json.Unmarshal(line, &first); err != nil {
		return fmt.Errorf("artifact first record is not valid JSON: %w", err)
	}
	if first.CustomID == "" {
		return fmt.Errorf("artifact first record has no custom_id")
	}
	return nil
}
