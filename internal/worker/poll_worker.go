package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/service"
)

// PollWorker advances in-flight batch jobs by one polling pass per task
type PollWorker struct {
	poller *service.Poller
	log    zerolog.Logger
}

// NewPollWorker creates a new poll worker
func NewPollWorker(poller *service.Poller, log zerolog.Logger) *PollWorker {
	return &PollWorker{
		poller: poller,
		log:    log,
	}
}

// ProcessTask runs one polling pass
func (w *PollWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if err := w.poller.PollOnce(ctx); err != nil {
		w.log.Error().Err(err).Msg("polling pass failed")
		return err
	}
	return nil
}
