package db

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/cellular.report/internal/testutil"
)

func TestRecordAndListFeatureRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	runID := NewRunID()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	testutil.AssertNoError(t, db.RecordFeatureRun(ctx, FeatureRun{
		RunID:      runID,
		ChunkStart: start,
		ChunkEnd:   start.Add(24 * time.Hour),
		RowCount:   120,
		Status:     RunStatusOK,
	}))
	errMsg := "fetch failed"
	testutil.AssertNoError(t, db.RecordFeatureRun(ctx, FeatureRun{
		RunID:      runID,
		ChunkStart: start.Add(24 * time.Hour),
		ChunkEnd:   start.Add(48 * time.Hour),
		Status:     RunStatusFailed,
		Error:      &errMsg,
	}))

	runs, err := db.FeatureRuns(ctx, runID)
	testutil.AssertNoError(t, err)
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Status != RunStatusOK || runs[0].RowCount != 120 {
		t.Errorf("unexpected first run: %+v", runs[0])
	}
	if runs[1].Status != RunStatusFailed || runs[1].Error == nil || *runs[1].Error != errMsg {
		t.Errorf("unexpected second run: %+v", runs[1])
	}
	if !runs[0].ChunkStart.Equal(start) {
		t.Errorf("chunk start round-trip mismatch: %v", runs[0].ChunkStart)
	}

	// other run ids are not returned
	other, err := db.FeatureRuns(ctx, NewRunID())
	testutil.AssertNoError(t, err)
	if len(other) != 0 {
		t.Errorf("expected no runs for fresh id, got %d", len(other))
	}
}
