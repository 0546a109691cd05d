package store

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore creates an in-memory SQLite store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRunsMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(path, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// reopening must not re-apply version 1
	s, err = New(path, logger)
	if err != nil {
		t.Fatalf("second New() failed: %v", err)
	}
	defer s.Close()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("migrations recorded = %d, want 1", count)
	}
}

func TestImportRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run := &ImportRun{
		ID:        "run-1",
		FileName:  "Resources.xml",
		Status:    RunRunning,
		StartTime: start,
	}
	if err := s.CreateImportRun(run); err != nil {
		t.Fatalf("CreateImportRun() failed: %v", err)
	}

	run.Status = RunPartial
	run.Records = 2500
	run.Batches = 3
	run.BatchesCompleted = 2
	run.BatchesRejected = 1
	run.EndTime = start.Add(time.Minute)
	run.ErrorMessage = "batch 2 rejected"
	if err := s.UpdateImportRun(run); err != nil {
		t.Fatalf("UpdateImportRun() failed: %v", err)
	}

	got, err := s.GetImportRun("run-1")
	if err != nil {
		t.Fatalf("GetImportRun() failed: %v", err)
	}
	if got.Status != RunPartial || got.Records != 2500 || got.Batches != 3 {
		t.Errorf("run = %+v", got)
	}
	if got.BatchesCompleted != 2 || got.BatchesRejected != 1 || got.BatchesFailed != 0 {
		t.Errorf("batch counters = %d/%d/%d", got.BatchesCompleted, got.BatchesRejected, got.BatchesFailed)
	}
	if !got.StartTime.Equal(start) || !got.EndTime.Equal(start.Add(time.Minute)) {
		t.Errorf("times = %v .. %v", got.StartTime, got.EndTime)
	}
	if got.ErrorMessage != "batch 2 rejected" {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
}

func TestCreateImportRunRequiresID(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateImportRun(&ImportRun{FileName: "x.xml", StartTime: time.Now()}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestImportRunNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetImportRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetImportRun() error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateImportRun(&ImportRun{ID: "missing", StartTime: time.Now()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateImportRun() error = %v, want ErrNotFound", err)
	}
}

func TestListImportRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		run := &ImportRun{ID: id, FileName: id + ".xml", Status: RunSucceeded, StartTime: base.Add(time.Duration(i) * time.Hour)}
		if err := s.CreateImportRun(run); err != nil {
			t.Fatalf("CreateImportRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.ListImportRuns(0)
	if err != nil {
		t.Fatalf("ListImportRuns() failed: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "c" || runs[2].ID != "a" {
		t.Fatalf("runs = %+v", runs)
	}

	limited, err := s.ListImportRuns(2)
	if err != nil {
		t.Fatalf("ListImportRuns(2) failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "c" || limited[1].ID != "b" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestImportBatches(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateImportRun(&ImportRun{ID: "run-1", FileName: "r.xml", StartTime: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateImportRun() failed: %v", err)
	}

	batches := []*ImportBatch{
		{RunID: "run-1", BatchIndex: 1, Size: 500, Outcome: "rejected", Message: "importer answered false"},
		{RunID: "run-1", BatchIndex: 0, Size: 1000, Outcome: "completed", Attempts: 3, DurationMs: 12000},
	}
	for _, b := range batches {
		if err := s.AddImportBatch(b); err != nil {
			t.Fatalf("AddImportBatch() failed: %v", err)
		}
		if b.ID == 0 {
			t.Error("expected ID to be set")
		}
	}

	// duplicate index for the same run is rejected
	if err := s.AddImportBatch(&ImportBatch{RunID: "run-1", BatchIndex: 0, Outcome: "completed"}); err == nil {
		t.Error("expected duplicate batch index to fail")
	}

	got, err := s.ListImportBatches("run-1")
	if err != nil {
		t.Fatalf("ListImportBatches() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d batches, want 2", len(got))
	}
	if got[0].BatchIndex != 0 || got[0].Attempts != 3 || got[0].DurationMs != 12000 {
		t.Errorf("first batch = %+v", got[0])
	}
	if got[1].Outcome != "rejected" || got[1].Message != "importer answered false" {
		t.Errorf("second batch = %+v", got[1])
	}

	none, err := s.ListImportBatches("other")
	if err != nil {
		t.Fatalf("ListImportBatches(other) failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no batches, got %d", len(none))
	}
}
