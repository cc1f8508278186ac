package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/cellular.report/internal/db"
	"github.com/banshee-data/cellular.report/internal/monitoring"
)

// exporter column headers mapped onto RawRecord fields
var columnSetters = map[string]func(*db.RawRecord, string){
	"Timestamp":    func(r *db.RawRecord, v string) { r.Timestamp = v },
	"Latitude":     func(r *db.RawRecord, v string) { r.Latitude = v },
	"Longitude":    func(r *db.RawRecord, v string) { r.Longitude = v },
	"Speed":        func(r *db.RawRecord, v string) { r.Speed = v },
	"Operatorname": func(r *db.RawRecord, v string) { r.Operator = v },
	"CellID":       func(r *db.RawRecord, v string) { r.CellID = v },
	"NetworkMode":  func(r *db.RawRecord, v string) { r.NetMode = v },
	"RSRP":         func(r *db.RawRecord, v string) { r.Rsrp = v },
	"RSRQ":         func(r *db.RawRecord, v string) { r.Rsrq = v },
	"SNR":          func(r *db.RawRecord, v string) { r.Snr = v },
	"RSSI":         func(r *db.RawRecord, v string) { r.Rssi = v },
	"CQI":          func(r *db.RawRecord, v string) { r.Cqi = v },
	"DL_bitrate":   func(r *db.RawRecord, v string) { r.DlBitrate = v },
	"UL_bitrate":   func(r *db.RawRecord, v string) { r.UlBitrate = v },
	"State":        func(r *db.RawRecord, v string) { r.State = v },
	"PINGAVG":      func(r *db.RawRecord, v string) { r.PingAvg = v },
	"PINGMIN":      func(r *db.RawRecord, v string) { r.PingMin = v },
	"PINGMAX":      func(r *db.RawRecord, v string) { r.PingMax = v },
	"PINGSTDEV":    func(r *db.RawRecord, v string) { r.PingStdev = v },
	"PINGLOSS":     func(r *db.RawRecord, v string) { r.PingLoss = v },
	"CELLHEX":      func(r *db.RawRecord, v string) { r.CellHex = v },
	"NODEHEX":      func(r *db.RawRecord, v string) { r.NodeHex = v },
	"LACHEX":       func(r *db.RawRecord, v string) { r.LacHex = v },
	"RAWCELLID":    func(r *db.RawRecord, v string) { r.RawCellID = v },
	"NRxRSRP":      func(r *db.RawRecord, v string) { r.NrxRsrp = v },
	"NRxRSRQ":      func(r *db.RawRecord, v string) { r.NrxRsrq = v },
}

// ReadCSV parses a telemetry export. The first row must be a header; columns
// are matched by name and unknown columns are ignored.
func ReadCSV(r io.Reader) ([]db.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // exporter rows are occasionally ragged

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	setters := make([]func(*db.RawRecord, string), len(header))
	known := 0
	for i, name := range header {
		if set, ok := columnSetters[name]; ok {
			setters[i] = set
			known++
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("no recognized columns in CSV header %v", header)
	}

	var records []db.RawRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		var rec db.RawRecord
		for i, v := range row {
			if i < len(setters) && setters[i] != nil {
				setters[i](&rec, v)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// IngestCSV loads a telemetry export into the store: raw records verbatim
// into cell_raw, normalized samples into cell_clean. Returns the number of
// clean samples written.
func IngestCSV(ctx context.Context, database *db.DB, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return 0, err
	}

	if err := database.InsertRawRecords(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to store raw records: %w", err)
	}

	samples := Normalize(records)
	if err := database.InsertCleanSamples(ctx, samples); err != nil {
		return 0, fmt.Errorf("failed to store clean samples: %w", err)
	}

	dropped := len(records) - len(samples)
	if dropped > 0 {
		monitoring.Logf("ingest: dropped %d of %d records (missing timestamp or cell id)", dropped, len(records))
	}
	return len(samples), nil
}
