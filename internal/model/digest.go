package model

import (
	"fmt"
	"time"
)

// Video is the metadata for one channel upload
type Video struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId"`
	ChannelName string    `json:"channelName,omitempty"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"publishedAt"`
}

// URL returns the public watch URL for the video
func (v Video) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.ID)
}

// NewsItem is one related-news enrichment entry attached to a work unit
type NewsItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Source  string `json:"source,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// GeneratedPost is the structured payload the model returns for one unit
// of a generation batch. Field names are part of the wire contract.
type GeneratedPost struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Body    string   `json:"body"`
	Tags    []string `json:"tags"`
}

// TranslatedPost is the structured payload returned for one translation unit
type TranslatedPost struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Body    string `json:"body"`
}

// PostDraft is the staged per-unit result accumulated across the job chain:
// generation fills the text fields, the thumbnail stage adds ThumbnailURL,
// the translation stage fills Translations keyed by language tag. VideoID
// ties the draft back to its source video so the publish stage is
// self-contained.
type PostDraft struct {
	VideoID      string                    `json:"videoId,omitempty"`
	Title        string                    `json:"title"`
	Summary      string                    `json:"summary,omitempty"`
	Body         string                    `json:"body"`
	Tags         []string                  `json:"tags,omitempty"`
	ThumbnailURL string                    `json:"thumbnailUrl,omitempty"`
	Translations map[string]TranslatedPost `json:"translations,omitempty"`
}

// Post is the final published form pushed to the downstream blog API.
// Slug is deterministic so the endpoint can reject duplicates.
type Post struct {
	Slug          string    `json:"slug"`
	Lang          string    `json:"lang"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary,omitempty"`
	Body          string    `json:"body"`
	Tags          []string  `json:"tags,omitempty"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty"`
	SourceVideoID string    `json:"sourceVideoId,omitempty"`
	SourceURL     string    `json:"sourceUrl,omitempty"`
	PublishedAt   time.Time `json:"publishedAt"`
}

// PostSlug builds the deterministic slug for a video's post in a language
func PostSlug(videoID, lang string) string {
	return fmt.Sprintf("digest-%s-%s", videoID, lang)
}
