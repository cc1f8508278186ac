package db

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/cellular.report/internal/testutil"
)

func featureRowAt(cell string, ts time.Time, dl float64) FeatureRow {
	return FeatureRow{
		Ts:             ts,
		CellID:         cell,
		DlMbpsMean:     testutil.FloatPtr(dl),
		SignalClass:    "Good",
		HorizonMinutes: 15,
		TrendClass:     1,
		DlRoll: map[string]RollStats{
			"30m": {Mean: testutil.FloatPtr(dl), Min: testutil.FloatPtr(dl), Max: testutil.FloatPtr(dl)},
		},
		RsrpRoll: map[string]RollStats{},
		SnrRoll:  map[string]RollStats{},
	}
}

func TestReplaceChunkFeatures(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rows := []FeatureRow{
		featureRowAt("cell-a", start, 10),
		featureRowAt("cell-a", start.Add(15*time.Minute), 12),
		featureRowAt("cell-b", start, 20),
	}

	testutil.AssertNoError(t, db.ReplaceChunkFeatures(ctx, start, end, rows))

	count, err := db.CountFeatures(ctx, start, end)
	testutil.AssertNoError(t, err)
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	// rewriting the same chunk must not duplicate rows
	testutil.AssertNoError(t, db.ReplaceChunkFeatures(ctx, start, end, rows))
	count, err = db.CountFeatures(ctx, start, end)
	testutil.AssertNoError(t, err)
	if count != 3 {
		t.Fatalf("count after rewrite = %d, want 3", count)
	}

	got, err := db.FeaturesInRange(ctx, start, end)
	testutil.AssertNoError(t, err)
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	if got[0].CellID != "cell-a" || !got[0].Ts.Equal(start) {
		t.Errorf("unexpected first row %s@%v", got[0].CellID, got[0].Ts)
	}
	st := got[0].DlRoll["30m"]
	if st.Mean == nil || *st.Mean != 10 {
		t.Errorf("30m rolling mean round-trip failed: %v", st.Mean)
	}
	if st.Std != nil {
		t.Errorf("absent std should round-trip as nil, got %v", *st.Std)
	}
	if other := got[0].DlRoll["1h"]; other.Mean != nil {
		t.Errorf("unset window should be NULL, got %v", *other.Mean)
	}
}

func TestReplaceChunkFeaturesSupersedes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	testutil.AssertNoError(t, db.ReplaceChunkFeatures(ctx, start, end,
		[]FeatureRow{featureRowAt("cell-a", start, 10)}))
	testutil.AssertNoError(t, db.ReplaceChunkFeatures(ctx, start, end,
		[]FeatureRow{featureRowAt("cell-a", start, 42)}))

	got, err := db.FeaturesInRange(ctx, start, end)
	testutil.AssertNoError(t, err)
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if *got[0].DlMbpsMean != 42 {
		t.Errorf("rewrite should fully supersede prior rows, got dl=%v", *got[0].DlMbpsMean)
	}
}

func TestTrendSeriesAndFeatureCells(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rows := []FeatureRow{
		featureRowAt("cell-a", start, 10),
		featureRowAt("cell-a", start.Add(15*time.Minute), 12),
		featureRowAt("cell-b", start, 20),
	}
	testutil.AssertNoError(t, db.ReplaceChunkFeatures(ctx, start, end, rows))

	series, err := db.TrendSeries(ctx, "cell-a", start, end)
	testutil.AssertNoError(t, err)
	if len(series) != 2 {
		t.Fatalf("got %d trend points, want 2", len(series))
	}
	if series[1].DlMbpsMean == nil {
		t.Fatal("series value missing")
	}
	testutil.AssertFloatNear(t, *series[1].DlMbpsMean, 12, 1e-9)

	cells, err := db.FeatureCells(ctx)
	testutil.AssertNoError(t, err)
	if len(cells) != 2 || cells[0] != "cell-a" || cells[1] != "cell-b" {
		t.Errorf("FeatureCells = %v", cells)
	}
}
