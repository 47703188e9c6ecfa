package service

import (
	"testing"

	"github.com/clipdigest/bots/internal/client"
	"github.com/clipdigest/bots/internal/model"
)

func TestMapCompletionStatus(t *testing.T) {
	tests := []struct {
		external string
		want     model.JobStatus
	}{
		{"completed", model.JobStatusCompleted},
		{"failed", model.JobStatusFailed},
		{"expired", model.JobStatusFailed},
		{"cancelled", model.JobStatusFailed},
		{"cancelling", model.JobStatusFailed},
		{"validating", model.JobStatusProcessing},
		{"in_progress", model.JobStatusProcessing},
		{"finalizing", model.JobStatusProcessing},
		{"", model.JobStatusProcessing},
		{"some_future_status", model.JobStatusProcessing},
	}

	for _, tt := range tests {
		if got := mapCompletionStatus(tt.external); got != tt.want {
			t.Errorf("mapCompletionStatus(%q) = %s, want %s", tt.external, got, tt.want)
		}
		if !mapCompletionStatus(tt.external).Valid() {
			t.Errorf("mapCompletionStatus(%q) is not a known state", tt.external)
		}
	}
}

func TestMapImageStatus(t *testing.T) {
	tests := []struct {
		external string
		want     model.JobStatus
	}{
		{client.ImageStateSucceeded, model.JobStatusCompleted},
		{client.ImageStateFailed, model.JobStatusFailed},
		{client.ImageStateCancelled, model.JobStatusFailed},
		{client.ImageStateExpired, model.JobStatusFailed},
		{client.ImageStatePending, model.JobStatusProcessing},
		{client.ImageStateRunning, model.JobStatusProcessing},
		{"BATCH_STATE_UNSPECIFIED", model.JobStatusProcessing},
		{"", model.JobStatusProcessing},
	}

	for _, tt := range tests {
		if got := mapImageStatus(tt.external); got != tt.want {
			t.Errorf("mapImageStatus(%q) = %s, want %s", tt.external, got, tt.want)
		}
	}
}
