package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/service"
)

// DigestWorker runs the daily video digest pipeline off the queue
type DigestWorker struct {
	digestService *service.DigestService
	log           zerolog.Logger
}

// NewDigestWorker creates a new digest worker
func NewDigestWorker(digestService *service.DigestService, log zerolog.Logger) *DigestWorker {
	return &DigestWorker{
		digestService: digestService,
		log:           log,
	}
}

// ProcessTask executes one digest run. An explicit date in the payload
// backfills that day; otherwise the run digests relative to now.
func (w *DigestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)

	var payload struct {
		Date string `json:"date"`
	}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal task payload: %w", err)
		}
	}

	var asOf time.Time
	if payload.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", payload.Date, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid date in task payload: %w", err)
		}
		// A backfill pretends to run at the end of the requested day.
		asOf = day.Add(24*time.Hour - time.Second)
	}

	w.log.Info().Str("task_id", taskID).Str("date", payload.Date).Msg("digest run started")

	started := time.Now()
	if err := w.digestService.RunDaily(ctx, asOf); err != nil {
		w.log.Error().Err(err).Str("task_id", taskID).Msg("digest run failed")
		return err
	}

	w.log.Info().Str("task_id", taskID).Dur("took", time.Since(started)).Msg("digest run finished")
	return nil
}
