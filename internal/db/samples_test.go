package db

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/cellular.report/internal/testutil"
)

func sampleAt(cell string, ts time.Time, dl float64) CleanSample {
	return CleanSample{
		Ts:     ts,
		CellID: cell,
		DlMbps: testutil.FloatPtr(dl),
	}
}

func TestSpanSummaryEmpty(t *testing.T) {
	db := newTestDB(t)

	minTs, maxTs, count, err := db.SpanSummary(context.Background())
	testutil.AssertNoError(t, err)
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if !minTs.IsZero() || !maxTs.IsZero() {
		t.Errorf("empty store should report zero times, got %v / %v", minTs, maxTs)
	}
}

func TestInsertAndQuerySamples(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := testutil.MustParseTime(t, "2024-03-01T10:00:00Z")
	samples := []CleanSample{
		sampleAt("cell-b", base.Add(15*time.Minute), 20),
		sampleAt("cell-a", base, 10),
		sampleAt("cell-a", base.Add(30*time.Minute), 12),
	}
	samples[1].Operator = testutil.StrPtr("TestNet")
	testutil.AssertNoError(t, db.InsertCleanSamples(ctx, samples))

	minTs, maxTs, count, err := db.SpanSummary(ctx)
	testutil.AssertNoError(t, err)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if !minTs.Equal(base) {
		t.Errorf("minTs = %v, want %v", minTs, base)
	}
	if !maxTs.Equal(base.Add(30 * time.Minute)) {
		t.Errorf("maxTs = %v, want %v", maxTs, base.Add(30*time.Minute))
	}

	// [base, base+15m] excludes the later cell-a sample
	got, err := db.SamplesInRange(ctx, base, base.Add(15*time.Minute))
	testutil.AssertNoError(t, err)
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}
	// ordered by (cell_id, ts)
	if got[0].CellID != "cell-a" || got[1].CellID != "cell-b" {
		t.Errorf("unexpected order: %s, %s", got[0].CellID, got[1].CellID)
	}
	if !got[0].Ts.Equal(base) {
		t.Errorf("ts round-trip mismatch: %v, want %v", got[0].Ts, base)
	}
	if got[0].Operator == nil || *got[0].Operator != "TestNet" {
		t.Errorf("operator round-trip mismatch: %v", got[0].Operator)
	}
}

func TestSamplesInRangeFirstWinsDedup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	first := sampleAt("cell-a", ts, 10)
	first.Rsrp = testutil.FloatPtr(-90)
	second := sampleAt("cell-a", ts, 99)
	second.Rsrp = testutil.FloatPtr(-120)

	testutil.AssertNoError(t, db.InsertCleanSamples(ctx, []CleanSample{first}))
	testutil.AssertNoError(t, db.InsertCleanSamples(ctx, []CleanSample{second}))

	got, err := db.SamplesInRange(ctx, ts.Add(-time.Minute), ts.Add(time.Minute))
	testutil.AssertNoError(t, err)
	if len(got) != 1 {
		t.Fatalf("got %d samples after dedup, want 1", len(got))
	}
	if got[0].DlMbps == nil || *got[0].DlMbps != 10 {
		t.Errorf("dedup should keep the first-stored sample, got dl=%v", got[0].DlMbps)
	}
}

func TestSamplesInRangeNullFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := CleanSample{Ts: ts, CellID: "cell-a", IsAnomaly: true}
	testutil.AssertNoError(t, db.InsertCleanSamples(ctx, []CleanSample{s}))

	got, err := db.SamplesInRange(ctx, ts, ts)
	testutil.AssertNoError(t, err)
	if len(got) != 1 {
		t.Fatalf("got %d samples, want 1", len(got))
	}
	if got[0].Rsrp != nil || got[0].DlMbps != nil {
		t.Error("missing numerics should round-trip as nil")
	}
	if !got[0].IsAnomaly {
		t.Error("is_anomaly flag lost in round-trip")
	}
}
