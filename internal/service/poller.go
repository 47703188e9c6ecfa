package service

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/client"
	"github.com/clipdigest/bots/internal/model"
	"github.com/clipdigest/bots/internal/store"
)

// A completed handler gets this many runs before the job is abandoned
const maxHandlerAttempts = 2

// ChainHandler applies job-type-specific handling when a batch reaches a
// terminal state. Completed handlers own the record's afterlife: they
// either replace it with a chained successor or remove it. Failed handlers
// are degraded-path continuations; the poller removes the record afterwards
// if they left it in place.
type ChainHandler interface {
	OnGenerationCompleted(ctx context.Context, rec model.JobRecord) error
	OnThumbnailCompleted(ctx context.Context, rec model.JobRecord) error
	OnThumbnailFailed(ctx context.Context, rec model.JobRecord) error
	OnTranslationCompleted(ctx context.Context, rec model.JobRecord) error
	OnTranslationFailed(ctx context.Context, rec model.JobRecord) error
}

// Poller advances every in-flight batch job one step per tick. It never
// blocks on the external system beyond a bounded status call; waiting is
// achieved by being invoked again on the next scheduler tick, with the job
// store as the only state carried between ticks.
type Poller struct {
	store     *store.JobStore
	completer client.BatchCompleter
	imager    client.ImageBatcher
	chain     ChainHandler
	notifier  client.Notifier
	log       zerolog.Logger
}

// NewPoller creates a poller over the given store and batch endpoints
func NewPoller(st *store.JobStore, completer client.BatchCompleter, imager client.ImageBatcher, chain ChainHandler, notifier client.Notifier, log zerolog.Logger) *Poller {
	return &Poller{
		store:     st,
		completer: completer,
		imager:    imager,
		chain:     chain,
		notifier:  notifier,
		log:       log,
	}
}

// PollOnce runs one polling pass: first over completion-endpoint jobs
// (generation, translation), then an independent pass over image-endpoint
// jobs. The second pass reloads the store so jobs chained by the first
// pass are picked up on their natural next tick, not skipped forever.
func (p *Poller) PollOnce(ctx context.Context) error {
	records := p.store.Load()
	if len(records) == 0 {
		return nil
	}
	p.log.Debug().Int("in_flight", len(records)).Msg("poller: tick")

	for _, rec := range records {
		if rec.JobType == model.JobTypeThumbnail || !rec.Status.InFlight() {
			continue
		}
		p.pollCompletion(ctx, rec)
	}

	for _, rec := range p.store.Load() {
		if rec.JobType != model.JobTypeThumbnail || !rec.Status.InFlight() {
			continue
		}
		p.pollImage(ctx, rec)
	}
	return nil
}

func (p *Poller) pollCompletion(ctx context.Context, rec model.JobRecord) {
	external, err := p.completer.BatchStatus(ctx, rec.JobID)
	if err != nil {
		p.log.Warn().Err(err).Str("job_id", rec.JobID).Msg("poller: status check failed, will retry next tick")
		return
	}
	p.advance(ctx, rec, external, mapCompletionStatus(external))
}

func (p *Poller) pollImage(ctx context.Context, rec model.JobRecord) {
	external, err := p.imager.BatchState(ctx, rec.JobID)
	if err != nil {
		p.log.Warn().Err(err).Str("job_id", rec.JobID).Msg("poller: image state check failed, will retry next tick")
		return
	}
	p.advance(ctx, rec, external, mapImageStatus(external))
}

// advance applies one state transition for rec. Completed is deliberately
// never persisted: the handler either chains or removes the record, and a
// crash mid-handler leaves it processing so the next tick re-examines it.
func (p *Poller) advance(ctx context.Context, rec model.JobRecord, external string, next model.JobStatus) {
	switch next {
	case model.JobStatusProcessing:
		if rec.Status == model.JobStatusPending {
			if err := p.store.Update(rec.JobID, func(r *model.JobRecord) {
				r.Status = model.JobStatusProcessing
			}); err != nil {
				p.log.Error().Err(err).Str("job_id", rec.JobID).Msg("poller: failed to persist status")
			}
		}
	case model.JobStatusCompleted:
		p.runCompletedHandler(ctx, rec)
	case model.JobStatusFailed:
		p.handleFailed(ctx, rec, external)
	}
}

func (p *Poller) runCompletedHandler(ctx context.Context, rec model.JobRecord) {
	var err error
	switch rec.JobType {
	case model.JobTypeGeneration:
		err = p.chain.OnGenerationCompleted(ctx, rec)
	case model.JobTypeThumbnail:
		err = p.chain.OnThumbnailCompleted(ctx, rec)
	case model.JobTypeTranslation:
		err = p.chain.OnTranslationCompleted(ctx, rec)
	default:
		p.log.Error().Str("job_id", rec.JobID).Str("job_type", rec.JobType).Msg("poller: unknown job type, abandoning")
		p.removeRecord(rec)
		return
	}
	if err == nil {
		return
	}

	attempts := rec.Attempts + 1
	if attempts >= maxHandlerAttempts {
		p.log.Error().Err(err).Str("job_id", rec.JobID).Int("attempts", attempts).Msg("poller: result handler exhausted, abandoning")
		p.notifier.Notify(ctx, fmt.Sprintf("⚠️ batch %q (%s): result handler failed %d times, abandoning: %v", rec.DisplayName, rec.JobType, attempts, err))
		p.removeRecord(rec)
		return
	}

	p.log.Warn().Err(err).Str("job_id", rec.JobID).Int("attempts", attempts).Msg("poller: result handler failed, will retry next tick")
	if uerr := p.store.Update(rec.JobID, func(r *model.JobRecord) {
		r.Attempts = attempts
		r.Status = model.JobStatusProcessing
	}); uerr != nil {
		p.log.Error().Err(uerr).Str("job_id", rec.JobID).Msg("poller: failed to persist attempt count")
	}
}

func (p *Poller) handleFailed(ctx context.Context, rec model.JobRecord, external string) {
	p.log.Error().Str("job_id", rec.JobID).Str("job_type", rec.JobType).Str("external_status", external).Msg("poller: batch failed")
	p.notifier.Notify(ctx, fmt.Sprintf("❌ batch %q (%s) failed: external status %s", rec.DisplayName, rec.JobType, external))

	// Degraded continuations: a failed thumbnail or translation stage must
	// not take the staged drafts down with it.
	switch rec.JobType {
	case model.JobTypeThumbnail:
		if err := p.chain.OnThumbnailFailed(ctx, rec); err != nil {
			p.log.Error().Err(err).Str("job_id", rec.JobID).Msg("poller: degraded chain after thumbnail failure failed")
		}
	case model.JobTypeTranslation:
		if err := p.chain.OnTranslationFailed(ctx, rec); err != nil {
			p.log.Error().Err(err).Str("job_id", rec.JobID).Msg("poller: degraded publish after translation failure failed")
		}
	}

	p.removeRecord(rec)
}

// removeRecord drops rec from the store (a no-op when a handler already
// replaced it) and deletes its submission artifact.
func (p *Poller) removeRecord(rec model.JobRecord) {
	if err := p.store.Remove(rec.JobID); err != nil {
		p.log.Error().Err(err).Str("job_id", rec.JobID).Msg("poller: failed to remove record")
	}
	removeArtifact(p.log, rec.AuxFilePath)
}

// removeArtifact deletes a submission artifact file, tolerating absence
func removeArtifact(log zerolog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("failed to delete submission artifact")
	}
}
