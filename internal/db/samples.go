package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// RawRecord is one telemetry record exactly as ingested, all values verbatim.
// Empty strings are stored as NULL.
type RawRecord struct {
	Timestamp string
	Latitude  string
	Longitude string
	Speed     string
	Operator  string
	CellID    string
	NetMode   string
	Rsrp      string
	Rsrq      string
	Snr       string
	Rssi      string
	Cqi       string
	DlBitrate string
	UlBitrate string
	State     string
	PingAvg   string
	PingMin   string
	PingMax   string
	PingStdev string
	PingLoss  string
	CellHex   string
	NodeHex   string
	LacHex    string
	RawCellID string
	NrxRsrp   string
	NrxRsrq   string
}

// CleanSample is a normalized telemetry sample. Numeric fields that failed
// coercion are nil. Samples are immutable once stored.
type CleanSample struct {
	Ts          time.Time
	CellID      string
	Latitude    *float64
	Longitude   *float64
	Speed       *float64
	Operator    *string
	NetMode     *string
	State       *string
	Rsrp        *float64
	Rsrq        *float64
	Snr         *float64
	Rssi        *float64
	Cqi         *float64
	DlMbps      *float64
	UlMbps      *float64
	PingAvgMs   *float64
	PingMinMs   *float64
	PingMaxMs   *float64
	PingStdevMs *float64
	PingLossPct *float64
	CellHex     *string
	NodeHex     *string
	LacHex      *string
	RawCellID   *string
	NrxRsrp     *float64
	NrxRsrq     *float64
	IsAnomaly   bool
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// InsertRawRecords appends raw records verbatim to cell_raw in one transaction.
func (db *DB) InsertRawRecords(ctx context.Context, records []RawRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("failed to rollback insert transaction: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cell_raw (
			raw_timestamp, raw_latitude, raw_longitude, raw_speed, raw_operator,
			raw_cellid, raw_netmode, raw_rsrp, raw_rsrq, raw_snr, raw_rssi,
			raw_cqi, raw_dl_bitrate, raw_ul_bitrate, raw_state, raw_pingavg,
			raw_pingmin, raw_pingmax, raw_pingstdev, raw_pingloss, raw_cellhex,
			raw_nodehex, raw_lachex, raw_rawcellid, raw_nrxrsrp, raw_nrxrsrq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			nullStr(r.Timestamp), nullStr(r.Latitude), nullStr(r.Longitude),
			nullStr(r.Speed), nullStr(r.Operator), nullStr(r.CellID),
			nullStr(r.NetMode), nullStr(r.Rsrp), nullStr(r.Rsrq), nullStr(r.Snr),
			nullStr(r.Rssi), nullStr(r.Cqi), nullStr(r.DlBitrate),
			nullStr(r.UlBitrate), nullStr(r.State), nullStr(r.PingAvg),
			nullStr(r.PingMin), nullStr(r.PingMax), nullStr(r.PingStdev),
			nullStr(r.PingLoss), nullStr(r.CellHex), nullStr(r.NodeHex),
			nullStr(r.LacHex), nullStr(r.RawCellID), nullStr(r.NrxRsrp),
			nullStr(r.NrxRsrq),
		)
		if err != nil {
			return fmt.Errorf("failed to insert raw record: %w", err)
		}
	}

	return tx.Commit()
}

// InsertCleanSamples appends normalized samples to cell_clean in one
// transaction.
func (db *DB) InsertCleanSamples(ctx context.Context, samples []CleanSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("failed to rollback insert transaction: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cell_clean (
			ts, cell_id, latitude, longitude, speed, operator, net_mode, state,
			rsrp, rsrq, snr, rssi, cqi, dl_mbps, ul_mbps,
			ping_avg_ms, ping_min_ms, ping_max_ms, ping_stdev_ms, ping_loss_pct,
			cellhex, nodehex, lachex, rawcellid, nrx_rsrp, nrx_rsrq, is_anomaly
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		_, err := stmt.ExecContext(ctx,
			unixSeconds(s.Ts), s.CellID, s.Latitude, s.Longitude, s.Speed,
			s.Operator, s.NetMode, s.State,
			s.Rsrp, s.Rsrq, s.Snr, s.Rssi, s.Cqi, s.DlMbps, s.UlMbps,
			s.PingAvgMs, s.PingMinMs, s.PingMaxMs, s.PingStdevMs, s.PingLossPct,
			s.CellHex, s.NodeHex, s.LacHex, s.RawCellID, s.NrxRsrp, s.NrxRsrq,
			s.IsAnomaly,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sample %s@%s: %w", s.CellID, s.Ts, err)
		}
	}

	return tx.Commit()
}

// SpanSummary reports the minimum and maximum sample timestamp and the total
// sample count. An empty store returns zero times, zero count, nil error.
func (db *DB) SpanSummary(ctx context.Context) (minTs, maxTs time.Time, count int64, err error) {
	var minS, maxS sql.NullFloat64
	err = db.QueryRowContext(ctx,
		`SELECT MIN(ts), MAX(ts), COUNT(*) FROM cell_clean`,
	).Scan(&minS, &maxS, &count)
	if err != nil {
		return time.Time{}, time.Time{}, 0, fmt.Errorf("failed to read sample span: %w", err)
	}
	if !minS.Valid || !maxS.Valid || count == 0 {
		return time.Time{}, time.Time{}, 0, nil
	}
	return fromUnixSeconds(minS.Float64), fromUnixSeconds(maxS.Float64), count, nil
}

// SamplesInRange returns the samples with ts in [start, end], ordered by
// (cell_id, ts), deduplicated so only the first stored sample per
// (cell_id, ts) pair survives ties.
func (db *DB) SamplesInRange(ctx context.Context, start, end time.Time) ([]CleanSample, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ts, cell_id, latitude, longitude, speed, operator, net_mode, state,
			rsrp, rsrq, snr, rssi, cqi, dl_mbps, ul_mbps,
			ping_avg_ms, ping_min_ms, ping_max_ms, ping_stdev_ms, ping_loss_pct,
			cellhex, nodehex, lachex, rawcellid, nrx_rsrp, nrx_rsrq, is_anomaly
		FROM cell_clean
		WHERE ts >= ? AND ts <= ?
		ORDER BY cell_id, ts, rowid`,
		unixSeconds(start), unixSeconds(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []CleanSample
	var lastCell string
	var lastTs float64
	first := true
	for rows.Next() {
		var ts float64
		var s CleanSample
		if err := rows.Scan(
			&ts, &s.CellID, &s.Latitude, &s.Longitude, &s.Speed,
			&s.Operator, &s.NetMode, &s.State,
			&s.Rsrp, &s.Rsrq, &s.Snr, &s.Rssi, &s.Cqi, &s.DlMbps, &s.UlMbps,
			&s.PingAvgMs, &s.PingMinMs, &s.PingMaxMs, &s.PingStdevMs, &s.PingLossPct,
			&s.CellHex, &s.NodeHex, &s.LacHex, &s.RawCellID, &s.NrxRsrp, &s.NrxRsrq,
			&s.IsAnomaly,
		); err != nil {
			return nil, err
		}
		// first-wins dedup per (cell_id, ts); rows arrive in rowid order
		if !first && s.CellID == lastCell && ts == lastTs {
			continue
		}
		first = false
		lastCell, lastTs = s.CellID, ts
		s.Ts = fromUnixSeconds(ts)
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}
