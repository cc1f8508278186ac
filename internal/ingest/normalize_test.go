package ingest

import (
	"testing"
	"time"

	"github.com/banshee-data/cellular.report/internal/db"
)

func TestFixTimestamp(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2024.01.02_10.30.15", "2024-01-02 10:30:15"},
		{"2024-01-02 10:30:15", "2024-01-02 10:30:15"},
		{"2024.01.02 10:30:15", "2024-01-02 10:30:15"},
	}
	for _, tc := range tests {
		if got := FixTimestamp(tc.in); got != tc.want {
			t.Errorf("FixTimestamp(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	got, ok := ParseTimestamp("2024.01.02_10.30.15")
	if !ok {
		t.Fatal("expected parseable timestamp")
	}
	want := time.Date(2024, 1, 2, 10, 30, 15, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseTimestamp = %v, want %v", got, want)
	}

	if _, ok := ParseTimestamp("garbage"); ok {
		t.Error("expected parse failure for garbage input")
	}
	if _, ok := ParseTimestamp(""); ok {
		t.Error("expected parse failure for empty input")
	}
}

func TestNormalizeCoercion(t *testing.T) {
	records := []db.RawRecord{
		{
			Timestamp: "2024-01-02 10:00:00",
			CellID:    "  cell-1  ",
			Rsrp:      "-95.5",
			Rsrq:      "#REF!",
			Snr:       "not-a-number",
			Operator:  " OpName ",
		},
	}
	samples := Normalize(records)
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	s := samples[0]
	if s.CellID != "cell-1" {
		t.Errorf("cell id not trimmed: %q", s.CellID)
	}
	if s.Rsrp == nil || *s.Rsrp != -95.5 {
		t.Errorf("rsrp = %v, want -95.5", s.Rsrp)
	}
	if s.Rsrq != nil {
		t.Errorf("sentinel rsrq should coerce to missing, got %v", *s.Rsrq)
	}
	if s.Snr != nil {
		t.Errorf("unparseable snr should coerce to missing, got %v", *s.Snr)
	}
	if s.Operator == nil || *s.Operator != "OpName" {
		t.Errorf("operator not trimmed: %v", s.Operator)
	}
}

func TestNormalizeDropsRowsWithoutKey(t *testing.T) {
	records := []db.RawRecord{
		{Timestamp: "garbage", CellID: "cell-1"},
		{Timestamp: "2024-01-02 10:00:00", CellID: "-"},
		{Timestamp: "2024-01-02 10:00:00", CellID: "cell-1"},
	}
	samples := Normalize(records)
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1 (rows without timestamp or cell id drop)", len(samples))
	}
}

func TestNormalizeAnomalyFlag(t *testing.T) {
	records := []db.RawRecord{
		// rsrp beyond physical range
		{Timestamp: "2024-01-02 10:00:00", CellID: "a", Rsrp: "-150", Rsrq: "-10", Snr: "5", Speed: "10"},
		// all in range
		{Timestamp: "2024-01-02 10:01:00", CellID: "a", Rsrp: "-95", Rsrq: "-10", Snr: "5", Speed: "10"},
		// speed out of range
		{Timestamp: "2024-01-02 10:02:00", CellID: "a", Rsrp: "-95", Rsrq: "-10", Snr: "5", Speed: "250"},
		// missing fields are not anomalous on their own
		{Timestamp: "2024-01-02 10:03:00", CellID: "a"},
	}
	samples := Normalize(records)
	if len(samples) != 4 {
		t.Fatalf("got %d samples, want 4 (anomalies are retained)", len(samples))
	}
	want := []bool{true, false, true, false}
	for i, w := range want {
		if samples[i].IsAnomaly != w {
			t.Errorf("sample %d: is_anomaly = %v, want %v", i, samples[i].IsAnomaly, w)
		}
	}
}

func TestNormalizeImputesColumnMean(t *testing.T) {
	records := []db.RawRecord{
		{Timestamp: "2024-01-02 10:00:00", CellID: "a", Snr: "10"},
		{Timestamp: "2024-01-02 10:01:00", CellID: "a", Snr: "20"},
		{Timestamp: "2024-01-02 10:02:00", CellID: "a"},
	}
	samples := Normalize(records)
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[2].Snr == nil || *samples[2].Snr != 15 {
		t.Errorf("missing snr should impute to column mean 15, got %v", samples[2].Snr)
	}
	// a column with no observations stays missing
	if samples[0].Cqi != nil {
		t.Errorf("cqi should stay missing, got %v", *samples[0].Cqi)
	}
}
