package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/clipdigest/bots/internal/model"
)

func seedJob(t *testing.T, ta *testApp, jobID, jobType string) {
	t.Helper()
	err := ta.store.Append(model.JobRecord{
		JobID:       jobID,
		JobType:     jobType,
		Status:      model.JobStatusPending,
		DisplayName: "digest-2025-12-31",
		CreatedAt:   time.Now().UTC(),
		Groups: []model.WorkUnit{
			{Key: "gen-0", VideoID: "vid-1", Title: "Test upload"},
		},
	})
	if err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}
}

func TestJobsList_Empty(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["count"] != float64(0) {
		t.Errorf("expected count 0, got %v", result["count"])
	}
}

func TestJobsList_WithRecords(t *testing.T) {
	ta := setupApp(t)
	seedJob(t, ta, "batch-abc", model.JobTypeGeneration)
	seedJob(t, ta, "batches/op-42", model.JobTypeThumbnail)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["count"] != float64(2) {
		t.Errorf("expected count 2, got %v", result["count"])
	}
	jobs, ok := result["jobs"].([]interface{})
	if !ok || len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %v", result["jobs"])
	}
	first, ok := jobs[0].(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected job shape: %v", jobs[0])
	}
	if first["jobId"] != "batch-abc" {
		t.Errorf("expected jobId 'batch-abc', got %v", first["jobId"])
	}
	if first["status"] != "pending" {
		t.Errorf("expected status 'pending', got %v", first["status"])
	}
	if first["units"] != float64(1) {
		t.Errorf("expected units 1, got %v", first["units"])
	}
}

func TestJobsList_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/jobs", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestJobsAbandon_Success(t *testing.T) {
	ta := setupApp(t)
	seedJob(t, ta, "batch-abc", model.JobTypeGeneration)

	resp, err := doAuthRequest(t, ta.app, http.MethodDelete, "/api/jobs/batch-abc", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNoContent)

	if _, found := ta.store.Get("batch-abc"); found {
		t.Error("expected record to be removed from the store")
	}
}

func TestJobsAbandon_SlashInID(t *testing.T) {
	ta := setupApp(t)
	// Image batch ids are operation paths, the route has to accept the slash.
	seedJob(t, ta, "batches/op-42", model.JobTypeThumbnail)

	resp, err := doAuthRequest(t, ta.app, http.MethodDelete, "/api/jobs/batches/op-42", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNoContent)

	if _, found := ta.store.Get("batches/op-42"); found {
		t.Error("expected record to be removed from the store")
	}
}

func TestJobsAbandon_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodDelete, "/api/jobs/no-such-job", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestJobsAbandon_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodDelete, "/api/jobs/batch-abc", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}
