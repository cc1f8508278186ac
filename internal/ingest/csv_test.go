package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/cellular.report/internal/db"
)

const testCSV = `Timestamp,CellID,RSRP,SNR,DL_bitrate,IgnoredColumn
2024-01-02 10:00:00,cell-1,-95,10,42.5,zzz
2024.01.02_10.15.00,cell-2,-101,#REF!,12,zzz
`

func TestReadCSV(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(testCSV))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].CellID != "cell-1" || records[0].Rsrp != "-95" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Timestamp != "2024.01.02_10.15.00" {
		t.Errorf("raw timestamp should be verbatim, got %q", records[1].Timestamp)
	}
}

func TestReadCSVRejectsUnknownHeader(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("foo,bar\n1,2\n")); err == nil {
		t.Fatal("expected error for unrecognized header")
	}
}

func TestIngestCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.csv")
	if err := os.WriteFile(path, []byte(testCSV), 0o644); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	database, err := db.NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	n, err := IngestCSV(ctx, database, path)
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}
	if n != 2 {
		t.Errorf("ingested %d samples, want 2", n)
	}

	_, _, count, err := database.SpanSummary(ctx)
	if err != nil {
		t.Fatalf("SpanSummary failed: %v", err)
	}
	if count != 2 {
		t.Errorf("stored %d clean samples, want 2", count)
	}

	var rawCount int
	if err := database.QueryRow("SELECT COUNT(*) FROM cell_raw").Scan(&rawCount); err != nil {
		t.Fatalf("failed to count cell_raw: %v", err)
	}
	if rawCount != 2 {
		t.Errorf("stored %d raw records, want 2", rawCount)
	}
}
