package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clipdigest/bots/internal/config"
)

func TestRecentUploadsParsesSearchResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("channelId") != "UC123" {
			t.Errorf("expected channelId UC123, got %q", q.Get("channelId"))
		}
		if q.Get("key") != "yt-key" {
			t.Error("expected api key in query")
		}
		if q.Get("publishedAfter") == "" {
			t.Error("expected publishedAfter in query")
		}
		fmt.Fprint(w, `{"items": [
			{"id": {"videoId": "vid-1"}, "snippet": {"channelId": "UC123", "channelTitle": "Chan", "title": "First", "publishedAt": "2026-08-24T10:00:00Z"}},
			{"id": {}, "snippet": {"title": "a playlist, not a video"}},
			{"id": {"videoId": "vid-2"}, "snippet": {"channelId": "UC123", "channelTitle": "Chan", "title": "Second", "publishedAt": "2026-08-24T08:00:00Z"}}
		]}`)
	}))
	defer ts.Close()

	c := NewYouTubeClient(&config.YouTubeConfig{APIKey: "yt-key", BaseURL: ts.URL, TranscriptURL: ts.URL})

	since := time.Date(2026, 8, 23, 21, 0, 0, 0, time.UTC)
	videos, err := c.RecentUploads(context.Background(), "UC123", since)
	if err != nil {
		t.Fatalf("RecentUploads failed: %v", err)
	}

	if len(videos) != 2 {
		t.Fatalf("expected 2 videos (playlist entry skipped), got %d", len(videos))
	}
	if videos[0].ID != "vid-1" || videos[0].Title != "First" {
		t.Errorf("unexpected first video: %+v", videos[0])
	}
	if videos[0].ChannelName != "Chan" {
		t.Errorf("expected channel name 'Chan', got %q", videos[0].ChannelName)
	}
	if !videos[0].PublishedAt.Equal(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected publish time: %v", videos[0].PublishedAt)
	}
}

func TestTranscriptReturnsText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transcript" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("video_id") != "vid-1" {
			t.Errorf("expected video_id vid-1, got %q", r.URL.Query().Get("video_id"))
		}
		fmt.Fprint(w, `{"videoId": "vid-1", "text": "hello world"}`)
	}))
	defer ts.Close()

	c := NewYouTubeClient(&config.YouTubeConfig{APIKey: "yt-key", BaseURL: ts.URL, TranscriptURL: ts.URL})

	text, err := c.Transcript(context.Background(), "vid-1")
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected transcript text, got %q", text)
	}
}

func TestTranscriptMissingIsTyped(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"service 404", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"empty text", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"videoId": "vid-1", "text": ""}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c := NewYouTubeClient(&config.YouTubeConfig{APIKey: "yt-key", BaseURL: ts.URL, TranscriptURL: ts.URL})

			_, err := c.Transcript(context.Background(), "vid-1")
			if !errors.Is(err, ErrNoTranscript) {
				t.Errorf("expected ErrNoTranscript, got %v", err)
			}
		})
	}
}

func TestTranscriptServiceErrorIsNotTyped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewYouTubeClient(&config.YouTubeConfig{APIKey: "yt-key", BaseURL: ts.URL, TranscriptURL: ts.URL})

	_, err := c.Transcript(context.Background(), "vid-1")
	if err == nil {
		t.Fatal("expected error for upstream failure")
	}
	if errors.Is(err, ErrNoTranscript) {
		t.Error("an upstream failure must not read as a missing transcript")
	}
}
