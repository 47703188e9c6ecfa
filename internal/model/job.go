package model

import (
	"fmt"
	"time"
)

// JobStatus is the internal lifecycle state of a batch job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status ends the job's lifecycle
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// InFlight reports whether the job still needs polling
func (s JobStatus) InFlight() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Valid reports whether s is one of the four known states
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job types
const (
	JobTypeGeneration  = "post-generation"
	JobTypeThumbnail   = "thumbnail-generation"
	JobTypeTranslation = "post-translation"
)

// UnitKeyPrefix returns the correlation-id prefix used for a job type
func UnitKeyPrefix(jobType string) string {
	switch jobType {
	case JobTypeGeneration:
		return "gen"
	case JobTypeThumbnail:
		return "thumb"
	case JobTypeTranslation:
		return "tr"
	}
	return "unit"
}

// UnitKey builds the stable correlation id for the unit at index
func UnitKey(jobType string, index int) string {
	return fmt.Sprintf("%s-%d", UnitKeyPrefix(jobType), index)
}

// JobRecord is one persisted in-flight batch job. Records are created at
// submission, mutated as polling advances them, and removed once their
// results are fully processed; the cache holds the in-flight frontier only.
type JobRecord struct {
	JobID       string    `json:"jobId"`   // external batch id; primary key
	JobType     string    `json:"jobType"` // selects the result handler
	Status      JobStatus `json:"status"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	// Groups is the ordered work-unit list; immutable once created.
	Groups []WorkUnit `json:"groups"`

	// AuxFilePath points at the on-disk submission artifact, kept until the
	// record reaches a terminal state.
	AuxFilePath string `json:"auxFilePath,omitempty"`

	// ResultsByUnit stages per-unit drafts as they are produced; chained
	// jobs carry the staging forward so each stage can enrich it.
	ResultsByUnit map[int]*PostDraft `json:"resultsByUnit"`

	// SourceJobID links a chained job back to the job that spawned it
	// (at most one pending/processing chain per source). ParentJobID points
	// at the root generation job of the chain.
	SourceJobID string `json:"sourceJobId,omitempty"`
	ParentJobID string `json:"parentJobId,omitempty"`

	// Attempts counts completion-handler runs that errored.
	Attempts int `json:"attempts,omitempty"`
}

// Normalize repairs a record after deserialization: map-valued fields become
// empty maps rather than nil, and an unrecognized status degrades to
// processing so the next poll re-checks the external system.
func (r *JobRecord) Normalize() {
	if r.Groups == nil {
		r.Groups = []WorkUnit{}
	}
	if r.ResultsByUnit == nil {
		r.ResultsByUnit = map[int]*PostDraft{}
	}
	for _, d := range r.ResultsByUnit {
		if d != nil && d.Translations == nil {
			d.Translations = map[string]TranslatedPost{}
		}
	}
	if !r.Status.Valid() {
		r.Status = JobStatusProcessing
	}
}

// StagedCount returns how many units have a staged draft
func (r *JobRecord) StagedCount() int {
	n := 0
	for _, d := range r.ResultsByUnit {
		if d != nil {
			n++
		}
	}
	return n
}

// WorkUnit is one logical request inside a batch job: a correlation key,
// the semantic payload, and optional enrichment gathered before submission.
// Derivative jobs (thumbnails, translations) set SourceIndex to the group
// index of the draft they operate on, and translations carry Lang.
type WorkUnit struct {
	Key         string     `json:"key"`
	VideoID     string     `json:"videoId,omitempty"`
	ChannelID   string     `json:"channelId,omitempty"`
	Title       string     `json:"title,omitempty"`
	PublishedAt time.Time  `json:"publishedAt,omitempty"`
	Transcript  string     `json:"transcript,omitempty"`
	News        []NewsItem `json:"news,omitempty"`
	SourceIndex int        `json:"sourceIndex,omitempty"`
	Lang        string     `json:"lang,omitempty"`
}

// BatchResult is one raw per-request result as returned by an external
// batch endpoint, before demultiplexing. CustomID may be empty: some
// transports omit correlation metadata.
type BatchResult struct {
	CustomID string
	Body     []byte
	Err      string
}

// UnitOutcome is the demultiplexed outcome for one original work unit.
type UnitOutcome struct {
	Index int
	Unit  WorkUnit
	Body  []byte
	Err   string
}

// OK reports whether the outcome carries a usable body
func (o UnitOutcome) OK() bool {
	return o.Err == "" && len(o.Body) > 0
}

// JobSummary is the API view of one in-flight job
type JobSummary struct {
	JobID       string    `json:"jobId"`
	JobType     string    `json:"jobType"`
	Status      JobStatus `json:"status"`
	DisplayName string    `json:"displayName,omitempty"`
	Units       int       `json:"units"`
	Staged      int       `json:"staged"`
	Attempts    int       `json:"attempts,omitempty"`
	SourceJobID string    `json:"sourceJobId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// JobListResponse wraps the job summaries returned by the ops API
type JobListResponse struct {
	Jobs  []JobSummary `json:"jobs"`
	Count int          `json:"count"`
}

// RunDigestRequest is the optional body of a manual digest trigger. Date
// backfills a specific day instead of running against the current window.
type RunDigestRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// RunEnqueuedResponse reports the outcome of a manual run trigger. Queued
// is false when the same run is already pending or executing.
type RunEnqueuedResponse struct {
	TaskID string `json:"taskId"`
	Queued bool   `json:"queued"`
}
