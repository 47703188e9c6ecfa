package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/service"
)

// PortfolioWorker runs the daily portfolio snapshot off the queue
type PortfolioWorker struct {
	portfolioService *service.PortfolioService
	log              zerolog.Logger
}

// NewPortfolioWorker creates a new portfolio worker
func NewPortfolioWorker(portfolioService *service.PortfolioService, log zerolog.Logger) *PortfolioWorker {
	return &PortfolioWorker{
		portfolioService: portfolioService,
		log:              log,
	}
}

// ProcessTask executes one snapshot run
func (w *PortfolioWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)
	w.log.Info().Str("task_id", taskID).Msg("portfolio run started")

	started := time.Now()
	if err := w.portfolioService.RunSnapshot(ctx); err != nil {
		w.log.Error().Err(err).Str("task_id", taskID).Msg("portfolio run failed")
		return err
	}

	w.log.Info().Str("task_id", taskID).Dur("took", time.Since(started)).Msg("portfolio run finished")
	return nil
}
