package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/model"
)

// JobStore persists the in-flight JobRecord set to a single JSON file so
// batch jobs survive process restarts. Every helper is a read-modify-write
// over the whole snapshot; passes run single-threaded, so the store carries
// no locking of its own.
type JobStore struct {
	path string
	log  zerolog.Logger
}

// NewJobStore creates a store backed by the file at path
func NewJobStore(path string, log zerolog.Logger) *JobStore {
	return &JobStore{path: path, log: log}
}

// Path returns the backing file path
func (s *JobStore) Path() string {
	return s.path
}

// Load reads the persisted records. An absent, unreadable or unparsable
// file degrades to an empty set with a warning; a corrupt cache must never
// take the process down. Loaded records are normalized so map-valued
// fields are always non-nil.
func (s *JobStore) Load() []model.JobRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("jobstore: cache unreadable, treating as empty")
		}
		return []model.JobRecord{}
	}

	var records []model.JobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("jobstore: cache corrupt, treating as empty")
		return []model.JobRecord{}
	}

	for i := range records {
		records[i].Normalize()
	}
	return records
}

// Save overwrites the snapshot. The new content is written to a sibling
// temp file and renamed over the old one, so a crash mid-write leaves the
// previous snapshot intact.
func (s *JobStore) Save(records []model.JobRecord) error {
	if records == nil {
		records = []model.JobRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job records: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Append adds one record to the snapshot
func (s *JobStore) Append(record model.JobRecord) error {
	records := s.Load()
	return s.Save(append(records, record))
}

// Remove deletes the record with the given job id; absent ids are a no-op
func (s *JobStore) Remove(jobID string) error {
	records := s.Load()
	kept := records[:0]
	for _, r := range records {
		if r.JobID != jobID {
			kept = append(kept, r)
		}
	}
	return s.Save(kept)
}

// Update applies mutate to the record with the given job id. A missing id
// is a silent no-op: the record may have been removed by an earlier step
// of the same pass.
func (s *JobStore) Update(jobID string, mutate func(*model.JobRecord)) error {
	records := s.Load()
	for i := range records {
		if records[i].JobID == jobID {
			mutate(&records[i])
			return s.Save(records)
		}
	}
	s.log.Debug().Str("job_id", jobID).Msg("jobstore: update on missing record, skipping")
	return nil
}

// Replace drops the record with dropJobID (if present) and appends the
// given records in the same snapshot write. Chaining uses this so "source
// removed" and "successor recorded" cannot be separated by a crash.
func (s *JobStore) Replace(dropJobID string, add ...model.JobRecord) error {
	records := s.Load()
	kept := records[:0]
	for _, r := range records {
		if r.JobID != dropJobID {
			kept = append(kept, r)
		}
	}
	return s.Save(append(kept, add...))
}

// Get returns the record with the given job id
func (s *JobStore) Get(jobID string) (model.JobRecord, bool) {
	for _, r := range s.Load() {
		if r.JobID == jobID {
			return r, true
		}
	}
	return model.JobRecord{}, false
}
