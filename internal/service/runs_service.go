package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/model"
)

const (
	TaskTypeDigest    = "digest:run"
	TaskTypePortfolio = "portfolio:run"
	TaskTypePoll      = "jobs:poll"

	// Dispatch tasks exist because scheduler entries are static: the
	// scheduler fires a dispatch, and its handler enqueues the real run
	// with a date-scoped task id computed at that moment.
	TaskTypeDigestDispatch    = "digest:dispatch"
	TaskTypePortfolioDispatch = "portfolio:dispatch"
)

// queueBots is the single worker queue; Concurrency 1 on the server side
// makes every run exclusive.
const queueBots = "bots"

// RunsService enqueues bot runs. Each run type carries a deterministic task
// id so a manual trigger and the scheduler dedupe against each other: the
// second enqueue of an already-queued run reports Queued=false instead of
// stacking a duplicate.
type RunsService struct {
	asynqClient *asynq.Client
	log         zerolog.Logger
}

func NewRunsService(asynqClient *asynq.Client, log zerolog.Logger) *RunsService {
	return &RunsService{
		asynqClient: asynqClient,
		log:         log,
	}
}

// EnqueueDigest queues a digest run for the given date (empty means
// today). The task id is date-scoped, so retriggering the same day is a
// no-op until the retained task expires. Runs are never auto-retried:
// every failure path inside a run already alerts, and a retry could
// re-submit work the failed run half-finished.
func (s *RunsService) EnqueueDigest(ctx context.Context, date string) (*model.RunEnqueuedResponse, error) {
	day, payload, err := digestRunPayload(date)
	if err != nil {
		return nil, err
	}
	return s.enqueue(ctx, TaskTypeDigest, TaskTypeDigest+":"+day, payload,
		asynq.Queue(queueBots),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
}

// EnqueuePortfolio queues today's portfolio snapshot run
func (s *RunsService) EnqueuePortfolio(ctx context.Context) (*model.RunEnqueuedResponse, error) {
	day := time.Now().UTC().Format("2006-01-02")
	return s.enqueue(ctx, TaskTypePortfolio, TaskTypePortfolio+":"+day, nil,
		asynq.Queue(queueBots),
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
	)
}

// EnqueuePoll queues one polling pass. The fixed task id plus zero
// retention keeps at most one poll pending or running at a time while
// freeing the id as soon as a pass finishes.
func (s *RunsService) EnqueuePoll(ctx context.Context) (*model.RunEnqueuedResponse, error) {
	return s.enqueue(ctx, TaskTypePoll, TaskTypePoll, nil,
		asynq.Queue(queueBots),
		asynq.MaxRetry(0),
		asynq.Timeout(15*time.Minute),
	)
}

func (s *RunsService) enqueue(ctx context.Context, taskType, taskID string, payload []byte, opts ...asynq.Option) (*model.RunEnqueuedResponse, error) {
	task := asynq.NewTask(taskType, payload)
	opts = append(opts, asynq.TaskID(taskID))

	info, err := s.asynqClient.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			s.log.Debug().Str("task_id", taskID).Msg("runs: already queued")
			return &model.RunEnqueuedResponse{TaskID: taskID, Queued: false}, nil
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.log.Info().Str("task_id", info.ID).Str("type", taskType).Msg("runs: queued")
	return &model.RunEnqueuedResponse{TaskID: info.ID, Queued: true}, nil
}

// digestRunPayload resolves the run date and builds the task payload.
// Explicit dates travel in the payload so the worker can backfill; the
// default run carries none and digests relative to execution time.
func digestRunPayload(date string) (string, []byte, error) {
	if date == "" {
		return time.Now().UTC().Format("2006-01-02"), nil, nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	payload, err := json.Marshal(map[string]string{"date": date})
	if err != nil {
		return "", nil, err
	}
	return date, payload, nil
}
