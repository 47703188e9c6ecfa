package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/config"
)

func TestChunkMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		limit   int
		want    []string
	}{
		{
			name:    "empty content",
			content: "",
			limit:   10,
			want:    nil,
		},
		{
			name:    "fits in one chunk",
			content: "hello\nworld",
			limit:   2000,
			want:    []string{"hello\nworld"},
		},
		{
			name:    "splits on line boundary",
			content: "aaa\nbbb\nccc",
			limit:   7,
			want:    []string{"aaa\nbbb", "ccc"},
		},
		{
			name:    "preserves blank lines inside a chunk",
			content: "a\n\nb",
			limit:   10,
			want:    []string{"a\n\nb"},
		},
		{
			name:    "hard-splits an overlong line",
			content: strings.Repeat("a", 4500),
			limit:   2000,
			want: []string{
				strings.Repeat("a", 2000),
				strings.Repeat("a", 2000),
				strings.Repeat("a", 500),
			},
		},
		{
			name:    "counts runes not bytes",
			content: "日本語テスト",
			limit:   3,
			want:    []string{"日本語", "テスト"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkMessage(tt.content, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d: %q", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkMessageOrderSurvivesRejoin(t *testing.T) {
	content := strings.Repeat("line one\nline two\n", 400)
	content = strings.TrimSuffix(content, "\n")

	chunks := ChunkMessage(content, discordMaxMessageLen)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > discordMaxMessageLen {
			t.Errorf("chunk %d has %d chars, limit is %d", i, n, discordMaxMessageLen)
		}
	}
	if rejoined := strings.Join(chunks, "\n"); rejoined != content {
		t.Error("rejoined chunks do not match original content")
	}
}

func TestNotifyPostsEachChunk(t *testing.T) {
	var payloads []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode webhook payload: %v", err)
		}
		payloads = append(payloads, body["content"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewDiscordClient(&config.DiscordConfig{WebhookURL: srv.URL}, zerolog.Nop())
	c.Notify(context.Background(), strings.Repeat("a", 4500))

	if len(payloads) != 3 {
		t.Fatalf("got %d webhook posts, want 3", len(payloads))
	}
	for i, p := range payloads {
		if len([]rune(p)) > discordMaxMessageLen {
			t.Errorf("post %d content exceeds %d chars", i, discordMaxMessageLen)
		}
	}
}

func TestNotifyStopsAfterFailedChunk(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewDiscordClient(&config.DiscordConfig{WebhookURL: srv.URL}, zerolog.Nop())
	c.Notify(context.Background(), strings.Repeat("a", 4500))

	if hits != 1 {
		t.Errorf("got %d webhook posts after failure, want 1", hits)
	}
}

func TestNotifyUnconfiguredIsSilent(t *testing.T) {
	c := NewDiscordClient(&config.DiscordConfig{}, zerolog.Nop())
	if c.IsConfigured() {
		t.Fatal("client with empty webhook URL reports configured")
	}
	// Must not panic or block.
	c.Notify(context.Background(), "hello")
}
