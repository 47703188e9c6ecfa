package service

import (
	"github.com/clipdigest/bots/internal/client"
	"github.com/clipdigest/bots/internal/model"
)

// mapCompletionStatus folds the completion endpoint's batch vocabulary onto
// the internal four-state machine. Unknown statuses map to processing so a
// new provider status never wedges the poller; the next tick re-checks.
func mapCompletionStatus(external string) model.JobStatus {
	switch external {
	case "completed":
		return model.JobStatusCompleted
	case "failed", "expired", "cancelled", "cancelling":
		return model.JobStatusFailed
	default:
		// validating, in_progress, finalizing, anything new
		return model.JobStatusProcessing
	}
}

// mapImageStatus does the same for the image endpoint's operation states
func mapImageStatus(external string) model.JobStatus {
	switch external {
	case client.ImageStateSucceeded:
		return model.JobStatusCompleted
	case client.ImageStateFailed, client.ImageStateCancelled, client.ImageStateExpired:
		return model.JobStatusFailed
	default:
		// pending, running, unspecified, anything new
		return model.JobStatusProcessing
	}
}
