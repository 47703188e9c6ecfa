package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/config"
)

// Discord rejects message content over 2000 characters
const discordMaxMessageLen = 2000

// Notifier posts best-effort status and alert messages to the chat webhook.
// Delivery failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, content string)
	IsConfigured() bool
}

// DiscordClient implements Notifier against a Discord-compatible webhook
type DiscordClient struct {
	httpClient *http.Client
	webhookURL string
	log        zerolog.Logger
}

// NewDiscordClient creates a new webhook notifier
func NewDiscordClient(cfg *config.DiscordConfig, log zerolog.Logger) *DiscordClient {
	return &DiscordClient{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		webhookURL: cfg.WebhookURL,
		log:        log,
	}
}

// Notify posts the content to the webhook, split into chunks the endpoint
// accepts. Fire-and-forget: errors are logged and swallowed.
func (c *DiscordClient) Notify(ctx context.Context, content string) {
	if content == "" {
		return
	}
	if !c.IsConfigured() {
		c.log.Debug().Msg("discord: webhook not configured, dropping message")
		return
	}

	for i, chunk := range ChunkMessage(content, discordMaxMessageLen) {
		if err := c.post(ctx, chunk); err != nil {
			c.log.Warn().Err(err).Int("chunk", i).Msg("discord: notify failed")
			return
		}
	}
}

func (c *DiscordClient) post(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *DiscordClient) IsConfigured() bool {
	return c.webhookURL != ""
}

// ChunkMessage splits content into pieces of at most limit characters,
// preferring line boundaries; a single line longer than the limit is
// hard-split. Chunk order preserves the original content order.
func ChunkMessage(content string, limit int) []string {
	if content == "" || limit <= 0 {
		return nil
	}

	var chunks []string
	current := ""

	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, line := range strings.Split(content, "\n") {
		runes := []rune(line)

		// Hard-split lines that cannot fit in any chunk.
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		line = string(runes)

		switch {
		case current == "":
			current = line
		case len([]rune(current))+1+len(runes) <= limit:
			current += "\n" + line
		default:
			flush()
			current = line
		}
	}
	flush()
	return chunks
}
