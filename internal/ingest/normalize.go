// Package ingest parses raw telemetry exports and normalizes them into clean
// samples: timestamp repair, numeric coercion, text trimming, and
// physical-range anomaly flagging. Anomalous samples are flagged, never
// dropped, so feature computation can decide whether to use them.
package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/cellular.report/internal/db"
)

var (
	dateSepRe = regexp.MustCompile(`(\d{4})\.(\d{2})\.(\d{2})`)
	timeSepRe = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{2})`)
)

// timestamp layouts tried after repair, in order
var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// FixTimestamp repairs the exporter's timestamp quirks: underscores for the
// date/time separator and dots inside date and time components.
func FixTimestamp(val string) string {
	val = strings.ReplaceAll(val, "_", " ")
	val = dateSepRe.ReplaceAllString(val, "$1-$2-$3")
	val = timeSepRe.ReplaceAllString(val, "$1:$2:$3")
	return val
}

// ParseTimestamp repairs and parses a raw timestamp value into UTC.
func ParseTimestamp(val string) (time.Time, bool) {
	s := strings.TrimSpace(FixTimestamp(val))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range tsLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// sentinel values the exporter emits for missing data
func isMissing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "#REF!", "NULL", "-", "NaN", "nan":
		return true
	}
	return false
}

// coerceFloat converts a raw value to a float, returning nil on a sentinel
// or unparseable value rather than failing the row.
func coerceFloat(s string) *float64 {
	if isMissing(s) {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

// coerceText trims a raw text value, returning nil on a sentinel.
func coerceText(s string) *string {
	if isMissing(s) {
		return nil
	}
	t := strings.TrimSpace(s)
	return &t
}

// Physically plausible ranges. A present value outside its range marks the
// sample anomalous; a missing value does not.
func outOfRange(v *float64, lo, hi float64) bool {
	return v != nil && (*v < lo || *v > hi)
}

func flagAnomaly(s *db.CleanSample) {
	s.IsAnomaly = outOfRange(s.Rsrp, -140, -40) ||
		outOfRange(s.Rsrq, -30, 0) ||
		outOfRange(s.Snr, -20, 30) ||
		outOfRange(s.Speed, 0, 200)
}

// Normalize converts raw records into clean samples. Records without a
// parseable timestamp or a cell id are dropped; everything else is coerced
// field-by-field. After anomaly flagging, numeric fields still missing are
// imputed with the batch column mean.
func Normalize(records []db.RawRecord) []db.CleanSample {
	samples := make([]db.CleanSample, 0, len(records))
	for _, r := range records {
		ts, ok := ParseTimestamp(r.Timestamp)
		if !ok {
			continue
		}
		cellID := coerceText(r.CellID)
		if cellID == nil {
			continue
		}

		s := db.CleanSample{
			Ts:          ts,
			CellID:      *cellID,
			Latitude:    coerceFloat(r.Latitude),
			Longitude:   coerceFloat(r.Longitude),
			Speed:       coerceFloat(r.Speed),
			Operator:    coerceText(r.Operator),
			NetMode:     coerceText(r.NetMode),
			State:       coerceText(r.State),
			Rsrp:        coerceFloat(r.Rsrp),
			Rsrq:        coerceFloat(r.Rsrq),
			Snr:         coerceFloat(r.Snr),
			Rssi:        coerceFloat(r.Rssi),
			Cqi:         coerceFloat(r.Cqi),
			DlMbps:      coerceFloat(r.DlBitrate),
			UlMbps:      coerceFloat(r.UlBitrate),
			PingAvgMs:   coerceFloat(r.PingAvg),
			PingMinMs:   coerceFloat(r.PingMin),
			PingMaxMs:   coerceFloat(r.PingMax),
			PingStdevMs: coerceFloat(r.PingStdev),
			PingLossPct: coerceFloat(r.PingLoss),
			CellHex:     coerceText(r.CellHex),
			NodeHex:     coerceText(r.NodeHex),
			LacHex:      coerceText(r.LacHex),
			RawCellID:   coerceText(r.RawCellID),
			NrxRsrp:     coerceFloat(r.NrxRsrp),
			NrxRsrq:     coerceFloat(r.NrxRsrq),
		}
		flagAnomaly(&s)
		samples = append(samples, s)
	}

	imputeMeans(samples)
	return samples
}

// numeric accessors used by mean imputation
var imputedFields = []func(*db.CleanSample) **float64{
	func(s *db.CleanSample) **float64 { return &s.Rsrp },
	func(s *db.CleanSample) **float64 { return &s.Rsrq },
	func(s *db.CleanSample) **float64 { return &s.Snr },
	func(s *db.CleanSample) **float64 { return &s.Rssi },
	func(s *db.CleanSample) **float64 { return &s.Cqi },
	func(s *db.CleanSample) **float64 { return &s.DlMbps },
	func(s *db.CleanSample) **float64 { return &s.UlMbps },
	func(s *db.CleanSample) **float64 { return &s.PingAvgMs },
	func(s *db.CleanSample) **float64 { return &s.PingMinMs },
	func(s *db.CleanSample) **float64 { return &s.PingMaxMs },
	func(s *db.CleanSample) **float64 { return &s.PingStdevMs },
	func(s *db.CleanSample) **float64 { return &s.PingLossPct },
	func(s *db.CleanSample) **float64 { return &s.Speed },
	func(s *db.CleanSample) **float64 { return &s.NrxRsrp },
	func(s *db.CleanSample) **float64 { return &s.NrxRsrq },
}

// imputeMeans fills missing numeric values with the batch column mean.
// Columns with no observed values stay missing.
func imputeMeans(samples []db.CleanSample) {
	for _, field := range imputedFields {
		var sum float64
		var n int
		for i := range samples {
			if v := *field(&samples[i]); v != nil {
				sum += *v
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		for i := range samples {
			slot := field(&samples[i])
			if *slot == nil {
				v := mean
				*slot = &v
			}
		}
	}
}
