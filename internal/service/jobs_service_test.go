package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/model"
	"github.com/clipdigest/bots/internal/store"
)

func TestJobsServiceListSummaries(t *testing.T) {
	st := store.NewJobStore(t.TempDir()+"/batch-jobs.json", zerolog.Nop())
	rec := model.JobRecord{
		JobID:       "b1",
		JobType:     model.JobTypeThumbnail,
		Status:      model.JobStatusProcessing,
		DisplayName: "thumbs-genjob",
		CreatedAt:   time.Now().UTC(),
		Groups:      generationUnits(3),
		ResultsByUnit: map[int]*model.PostDraft{
			0: {VideoID: "v0", Title: "Zero"},
			2: {VideoID: "v2", Title: "Two"},
		},
	}
	if err := st.Append(rec); err != nil {
		t.Fatal(err)
	}
	svc := NewJobsService(st, zerolog.Nop())

	summaries := svc.List()
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	s := summaries[0]
	if s.JobID != "b1" || s.Units != 3 || s.Staged != 2 {
		t.Errorf("summary = %+v", s)
	}
}

func TestJobsServiceAbandon(t *testing.T) {
	st := store.NewJobStore(t.TempDir()+"/batch-jobs.json", zerolog.Nop())
	artifact := writeTempArtifact(t)
	rec := model.JobRecord{
		JobID:       "b1",
		JobType:     model.JobTypeGeneration,
		Status:      model.JobStatusPending,
		CreatedAt:   time.Now().UTC(),
		AuxFilePath: artifact,
	}
	if err := st.Append(rec); err != nil {
		t.Fatal(err)
	}
	svc := NewJobsService(st, zerolog.Nop())

	found, err := svc.Abandon("b1")
	if err != nil || !found {
		t.Fatalf("Abandon = %v, %v", found, err)
	}
	if n := len(st.Load()); n != 0 {
		t.Errorf("store has %d records, want 0", n)
	}
	assertGone(t, artifact)

	found, err = svc.Abandon("nope")
	if err != nil || found {
		t.Errorf("Abandon(unknown) = %v, %v, want false, nil", found, err)
	}
}
