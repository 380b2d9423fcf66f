package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/config"
	"github.com/list-cutter/cutover/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DatabaseURL = "postgres://unused/db"
	cfg.MaxRetries = 3
	cfg.RetryDelayBase = time.Millisecond
	cfg.Workers = 2
	return cfg
}

// seedFiles writes n source files and registers them as eligible.
// Returns the file IDs in order.
func seedFiles(t *testing.T, st *memStore, n int) []string {
	t.Helper()
	dir := t.TempDir()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("file-%d", i+1)
		path := filepath.Join(dir, id+".csv")
		if err := os.WriteFile(path, []byte(fmt.Sprintf("row,%d\n", i)), 0o600); err != nil {
			t.Fatal(err)
		}

		st.addFile(models.FileEntity{
			FileID:   id,
			UserID:   "7",
			FileName: id + ".csv",
			FilePath: path,
		})
		ids = append(ids, id)
	}

	return ids
}

func newTestOrchestrator(st *memStore, tr *fakeTransfer) *Orchestrator {
	return New(testConfig(), st, tr, testLogger())
}

func shrinkPoll(t *testing.T) {
	t.Helper()
	old := claimPollInterval
	claimPollInterval = time.Millisecond
	t.Cleanup(func() { claimPollInterval = old })
}

func TestPlanBatch(t *testing.T) {
	st := newMemStore()
	ids := seedFiles(t, st, 3)
	orch := newTestOrchestrator(st, newFakeTransfer())

	batchID, err := orch.PlanBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("PlanBatch() error: %v", err)
	}

	batch, err := st.GetBatch(context.Background(), batchID)
	if err != nil {
		t.Fatal(err)
	}
	if batch.TotalFiles != 3 {
		t.Errorf("got %d files, want 3", batch.TotalFiles)
	}
	if batch.Status != models.BatchPending {
		t.Errorf("got status %s, want pending", batch.Status)
	}

	for _, id := range ids {
		if rec := st.record(batchID, id); rec.Status != models.RecordPending {
			t.Errorf("record %s: got status %s, want pending", id, rec.Status)
		}
	}
}

func TestPlanBatchNothingEligible(t *testing.T) {
	orch := newTestOrchestrator(newMemStore(), newFakeTransfer())

	_, err := orch.PlanBatch(context.Background(), 0)
	if !errors.Is(err, models.ErrNothingToMigrate) {
		t.Errorf("got %v, want ErrNothingToMigrate", err)
	}
}

// Three files: A transfers cleanly, B hits one checksum mismatch then
// succeeds, C always fails with a transient destination error.
func TestRunBatchMixedOutcomes(t *testing.T) {
	shrinkPoll(t)

	st := newMemStore()
	ids := seedFiles(t, st, 3)
	tr := newFakeTransfer()

	tr.mismatchOnce["migrated/7/file-2/file-2.csv"] = true
	tr.uploadErr["file-3"] = &models.TransientError{Op: "upload file-3", Err: errors.New("backend returned 500")}

	orch := newTestOrchestrator(st, tr)
	ctx := context.Background()

	batchID, err := orch.PlanBatch(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := orch.RunBatch(ctx, batchID, false)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}

	if summary.Status != models.SummaryPartial {
		t.Errorf("got summary status %s, want partial", summary.Status)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("got %d succeeded / %d failed, want 2/1", summary.Succeeded, summary.Failed)
	}

	if rec := st.record(batchID, ids[0]); rec.Status != models.RecordVerified {
		t.Errorf("file A: got status %s, want verified", rec.Status)
	}

	recB := st.record(batchID, ids[1])
	if recB.Status != models.RecordVerified {
		t.Errorf("file B: got status %s, want verified", recB.Status)
	}
	if recB.Attempts != 2 {
		t.Errorf("file B: got %d attempts, want 2", recB.Attempts)
	}

	recC := st.record(batchID, ids[2])
	if recC.Status != models.RecordFailed {
		t.Errorf("file C: got status %s, want failed", recC.Status)
	}
	if recC.Attempts != 4 {
		t.Errorf("file C: got %d attempts, want max_retries+1 = 4", recC.Attempts)
	}

	batch, _ := st.GetBatch(ctx, batchID)
	if batch.Status != models.BatchFailed {
		t.Errorf("got batch status %s, want failed (one permanent failure)", batch.Status)
	}
	if batch.CompletedFiles+batch.FailedFiles != batch.TotalFiles {
		t.Errorf("rollup counts %d+%d do not cover %d files",
			batch.CompletedFiles, batch.FailedFiles, batch.TotalFiles)
	}
}

// A file seeing only transient errors must land on failed after exactly
// max_retries+1 attempts.
func TestRetryBound(t *testing.T) {
	shrinkPoll(t)

	st := newMemStore()
	ids := seedFiles(t, st, 1)
	tr := newFakeTransfer()
	tr.uploadErr[ids[0]] = &models.TransientError{Op: "upload", Err: errors.New("connection reset")}

	cfg := testConfig()
	cfg.MaxRetries = 2
	orch := New(cfg, st, tr, testLogger())
	ctx := context.Background()

	batchID, err := orch.PlanBatch(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := orch.RunBatch(ctx, batchID, false)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}

	if summary.Status != models.SummaryFailed {
		t.Errorf("got summary status %s, want failed", summary.Status)
	}

	rec := st.record(batchID, ids[0])
	if rec.Attempts != 3 {
		t.Errorf("got %d attempts, want 3", rec.Attempts)
	}
	if rec.Status != models.RecordFailed {
		t.Errorf("got status %s, want failed", rec.Status)
	}
}

func TestRunBatchPermanentFailureStopsRetrying(t *testing.T) {
	shrinkPoll(t)

	st := newMemStore()
	ids := seedFiles(t, st, 1)
	tr := newFakeTransfer()
	tr.uploadErr[ids[0]] = &models.PermanentError{Op: "upload", Err: errors.New("file name rejected")}

	orch := newTestOrchestrator(st, tr)
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)
	if _, err := orch.RunBatch(ctx, batchID, false); err != nil {
		t.Fatal(err)
	}

	rec := st.record(batchID, ids[0])
	if rec.Attempts != 1 {
		t.Errorf("permanent failure retried: %d attempts", rec.Attempts)
	}
	if rec.Status != models.RecordFailed {
		t.Errorf("got status %s, want failed", rec.Status)
	}
}

func TestRunBatchMissingSourceFile(t *testing.T) {
	shrinkPoll(t)

	st := newMemStore()
	ids := seedFiles(t, st, 1)
	orch := newTestOrchestrator(st, newFakeTransfer())
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)

	// Source vanishes between planning and execution.
	if err := os.Remove(st.files[ids[0]].FilePath); err != nil {
		t.Fatal(err)
	}

	summary, err := orch.RunBatch(ctx, batchID, false)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Failed != 1 {
		t.Errorf("got %d failed, want 1", summary.Failed)
	}
	if rec := st.record(batchID, ids[0]); rec.Attempts != 1 {
		t.Errorf("missing source retried: %d attempts", rec.Attempts)
	}
}

func TestRunBatchHealthGate(t *testing.T) {
	st := newMemStore()
	seedFiles(t, st, 1)
	tr := newFakeTransfer()
	tr.healthy = false

	orch := newTestOrchestrator(st, tr)
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)
	if _, err := orch.RunBatch(ctx, batchID, false); err == nil {
		t.Error("expected error when destination is down")
	}

	batch, _ := st.GetBatch(ctx, batchID)
	if batch.Status != models.BatchPending {
		t.Errorf("batch started despite failed health check: %s", batch.Status)
	}
}

func TestRunBatchAlreadyTerminal(t *testing.T) {
	st := newMemStore()
	seedFiles(t, st, 1)
	orch := newTestOrchestrator(st, newFakeTransfer())
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)
	st.batches[batchID].Status = models.BatchCompleted

	if _, err := orch.RunBatch(ctx, batchID, false); err == nil {
		t.Error("expected error for completed batch")
	}
}

func TestDryRunMutatesNothing(t *testing.T) {
	st := newMemStore()
	ids := seedFiles(t, st, 2)
	tr := newFakeTransfer()
	orch := newTestOrchestrator(st, tr)
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)

	// One source file removed: the dry run should report it as a
	// would-be failure.
	if err := os.Remove(st.files[ids[1]].FilePath); err != nil {
		t.Fatal(err)
	}

	summary, err := orch.RunBatch(ctx, batchID, true)
	if err != nil {
		t.Fatalf("dry run error: %v", err)
	}

	if !summary.DryRun {
		t.Error("summary not marked dry-run")
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Errorf("got %d/%d, want 1 would-succeed and 1 would-fail", summary.Succeeded, summary.Failed)
	}

	if len(tr.checksums) != 0 {
		t.Error("dry run uploaded something")
	}

	batch, _ := st.GetBatch(ctx, batchID)
	if batch.Status != models.BatchPending {
		t.Errorf("dry run mutated batch status to %s", batch.Status)
	}
	for _, id := range ids {
		if rec := st.record(batchID, id); rec.Status != models.RecordPending || rec.Attempts != 0 {
			t.Errorf("dry run mutated record %s: %s attempts=%d", id, rec.Status, rec.Attempts)
		}
	}
}

func TestResumeBatch(t *testing.T) {
	shrinkPoll(t)

	st := newMemStore()
	ids := seedFiles(t, st, 2)
	orch := newTestOrchestrator(st, newFakeTransfer())
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)

	// Simulate a crash: batch processing, one record stuck mid-flight.
	st.batches[batchID].Status = models.BatchProcessing
	st.records[batchID][ids[0]].Status = models.RecordProcessing

	summary, err := orch.ResumeBatch(ctx, batchID)
	if err != nil {
		t.Fatalf("ResumeBatch() error: %v", err)
	}

	if summary.Status != models.SummaryCompleted {
		t.Errorf("got summary status %s, want completed", summary.Status)
	}
	if summary.Succeeded != 2 {
		t.Errorf("got %d succeeded, want 2", summary.Succeeded)
	}

	// The stuck record was re-claimed, not duplicated.
	if n := len(st.records[batchID]); n != 2 {
		t.Errorf("got %d records, want 2", n)
	}
	if rec := st.record(batchID, ids[0]); rec.Status != models.RecordVerified {
		t.Errorf("stuck record: got status %s, want verified", rec.Status)
	}
}

func TestResumeTerminalBatch(t *testing.T) {
	st := newMemStore()
	seedFiles(t, st, 1)
	orch := newTestOrchestrator(st, newFakeTransfer())
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)
	st.batches[batchID].Status = models.BatchRolledBack

	if _, err := orch.ResumeBatch(ctx, batchID); err == nil {
		t.Error("expected error resuming a rolled back batch")
	}
}

func TestRollbackBatch(t *testing.T) {
	shrinkPoll(t)

	st := newMemStore()
	ids := seedFiles(t, st, 2)
	tr := newFakeTransfer()
	orch := newTestOrchestrator(st, tr)
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)
	if _, err := orch.RunBatch(ctx, batchID, false); err != nil {
		t.Fatal(err)
	}

	result, err := orch.RollbackBatch(ctx, batchID)
	if err != nil {
		t.Fatalf("RollbackBatch() error: %v", err)
	}

	if result.Deleted != 2 {
		t.Errorf("got %d deleted, want 2", result.Deleted)
	}
	if result.RefsCleared != 2 {
		t.Errorf("got %d refs cleared, want 2", result.RefsCleared)
	}

	batch, _ := st.GetBatch(ctx, batchID)
	if batch.Status != models.BatchRolledBack {
		t.Errorf("got batch status %s, want rolled_back", batch.Status)
	}

	for _, id := range ids {
		if rec := st.record(batchID, id); rec.DestinationRef != nil {
			t.Errorf("record %s still holds a destination ref", id)
		}
	}
}

func TestRollbackRefusedWhileProcessing(t *testing.T) {
	st := newMemStore()
	seedFiles(t, st, 1)
	orch := newTestOrchestrator(st, newFakeTransfer())
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)
	st.batches[batchID].Status = models.BatchProcessing

	if _, err := orch.RollbackBatch(ctx, batchID); !errors.Is(err, models.ErrBatchProcessing) {
		t.Errorf("got %v, want ErrBatchProcessing", err)
	}
}

func TestRollbackSurvivesDeleteFailure(t *testing.T) {
	shrinkPoll(t)

	st := newMemStore()
	ids := seedFiles(t, st, 2)
	tr := newFakeTransfer()
	orch := newTestOrchestrator(st, tr)
	ctx := context.Background()

	batchID, _ := orch.PlanBatch(ctx, 0)
	if _, err := orch.RunBatch(ctx, batchID, false); err != nil {
		t.Fatal(err)
	}

	rec := st.record(batchID, ids[0])
	tr.deleteErr[*rec.DestinationRef] = &models.TransientError{Op: "delete", Err: errors.New("timeout")}

	result, err := orch.RollbackBatch(ctx, batchID)
	if err != nil {
		t.Fatalf("RollbackBatch() error: %v", err)
	}

	if result.Deleted != 1 || result.DeleteFailures != 1 {
		t.Errorf("got deleted=%d failures=%d, want 1/1", result.Deleted, result.DeleteFailures)
	}

	// Refs are cleared regardless so the batch can be re-planned; the
	// orphaned object is logged for manual cleanup.
	if result.RefsCleared != 2 {
		t.Errorf("got %d refs cleared, want 2", result.RefsCleared)
	}

	batch, _ := st.GetBatch(ctx, batchID)
	if batch.Status != models.BatchRolledBack {
		t.Errorf("got batch status %s, want rolled_back", batch.Status)
	}
}

func TestPlanConflictsWithActiveBatch(t *testing.T) {
	st := newMemStore()
	seedFiles(t, st, 1)
	orch := newTestOrchestrator(st, newFakeTransfer())
	ctx := context.Background()

	if _, err := orch.PlanBatch(ctx, 0); err != nil {
		t.Fatal(err)
	}

	_, err := orch.PlanBatch(ctx, 0)
	if !models.IsConflict(err) {
		t.Errorf("got %v, want ConflictError", err)
	}
}

func TestCancellationStopsBetweenClaims(t *testing.T) {
	shrinkPoll(t)

	st := newMemStore()
	seedFiles(t, st, 1)
	orch := newTestOrchestrator(st, newFakeTransfer())

	ctx, cancel := context.WithCancel(context.Background())
	batchID, _ := orch.PlanBatch(ctx, 0)
	cancel()

	// A pre-cancelled context still yields a clean summary: workers see
	// the cancellation and stop, nothing is half-done.
	summary, err := orch.RunBatch(ctx, batchID, false)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("RunBatch() error: %v", err)
	}

	if summary != nil && summary.Succeeded > 0 {
		t.Error("cancelled run migrated files")
	}
}
