package service

import (
	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/model"
	"github.com/clipdigest/bots/internal/store"
)

// JobsService exposes the job cache to the ops API
type JobsService struct {
	store *store.JobStore
	log   zerolog.Logger
}

func NewJobsService(st *store.JobStore, log zerolog.Logger) *JobsService {
	return &JobsService{
		store: st,
		log:   log,
	}
}

// List returns a summary for every cached job, oldest first
func (s *JobsService) List() []model.JobSummary {
	records := s.store.Load()
	summaries := make([]model.JobSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, model.JobSummary{
			JobID:       r.JobID,
			JobType:     r.JobType,
			Status:      r.Status,
			DisplayName: r.DisplayName,
			Units:       len(r.Groups),
			Staged:      r.StagedCount(),
			Attempts:    r.Attempts,
			SourceJobID: r.SourceJobID,
			CreatedAt:   r.CreatedAt,
		})
	}
	return summaries
}

// Abandon drops a job from the cache and deletes its submission artifact.
// The external batch is left to expire on the provider side. Returns false
// when the id is unknown.
func (s *JobsService) Abandon(jobID string) (bool, error) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		return false, nil
	}
	if err := s.store.Remove(jobID); err != nil {
		return true, err
	}
	removeArtifact(s.log, rec.AuxFilePath)
	s.log.Info().Str("job_id", jobID).Str("job_type", rec.JobType).Msg("jobs: abandoned via api")
	return true, nil
}
