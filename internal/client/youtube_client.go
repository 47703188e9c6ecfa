package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/model"
)

// ErrNoTranscript is returned when a video has no extractable transcript
var ErrNoTranscript = errors.New("no transcript available")

// VideoSource lists recent channel uploads and extracts their transcripts
type VideoSource interface {
	RecentUploads(ctx context.Context, channelID string, since time.Time) ([]model.Video, error)
	Transcript(ctx context.Context, videoID string) (string, error)
	IsConfigured() bool
}

// YouTubeClient implements VideoSource against the YouTube Data API plus
// the internal transcript-extraction service.
type YouTubeClient struct {
	httpClient    *http.Client
	apiKey        string
	baseURL       string
	transcriptURL string
}

// NewYouTubeClient creates a new video metadata client
func NewYouTubeClient(cfg *config.YouTubeConfig) *YouTubeClient {
	return &YouTubeClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey:        cfg.APIKey,
		baseURL:       cfg.BaseURL,
		transcriptURL: cfg.TranscriptURL,
	}
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			ChannelID    string    `json:"channelId"`
			ChannelTitle string    `json:"channelTitle"`
			Title        string    `json:"title"`
			PublishedAt  time.Time `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// RecentUploads returns the channel's videos published after since,
// newest first.
func (c *YouTubeClient) RecentUploads(ctx context.Context, channelID string, since time.Time) ([]model.Video, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("channelId", channelID)
	q.Set("type", "video")
	q.Set("order", "date")
	q.Set("maxResults", "25")
	q.Set("publishedAfter", since.UTC().Format(time.RFC3339))
	q.Set("key", c.apiKey)

	var body searchResponse
	if err := getJSON(ctx, c.httpClient, c.baseURL+"/search?"+q.Encode(), nil, &body); err != nil {
		return nil, fmt.Errorf("failed to list uploads for channel %s: %w", channelID, err)
	}

	videos := make([]model.Video, 0, len(body.Items))
	for _, item := range body.Items {
		if item.ID.VideoID == "" {
			continue
		}
		videos = append(videos, model.Video{
			ID:          item.ID.VideoID,
			ChannelID:   item.Snippet.ChannelID,
			ChannelName: item.Snippet.ChannelTitle,
			Title:       item.Snippet.Title,
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	return videos, nil
}

type transcriptResponse struct {
	VideoID string `json:"videoId"`
	Text    string `json:"text"`
}

// Transcript fetches the extracted transcript text for a video.
// Returns ErrNoTranscript when the service has none.
func (c *YouTubeClient) Transcript(ctx context.Context, videoID string) (string, error) {
	u := fmt.Sprintf("%s/api/transcript?video_id=%s", c.transcriptURL, url.QueryEscape(videoID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoTranscript
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcript service error: status %d", resp.StatusCode)
	}

	var body transcriptResponse
	if err := decodeJSON(resp, &body); err != nil {
		return "", err
	}
	if body.Text == "" {
		return "", ErrNoTranscript
	}
	return body.Text, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *YouTubeClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != "" && c.transcriptURL != ""
}
