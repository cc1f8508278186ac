package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// RollStats holds the statistics of one rolling window over one metric.
// Std/Min/Max are nil for metrics that don't compute them.
type RollStats struct {
	Mean *float64
	Std  *float64
	Min  *float64
	Max  *float64
}

// FeatureRow is one derived feature record, keyed by (CellID, Ts). The
// column set is stable: forecasting reads the base metrics, the policy stage
// reads SignalClass/TrendLabel/TrendClass, reporting reads the energy columns.
//
// DlMbpsFwd and the trend columns are the forward-horizon training target.
// They are the only deliberately non-causal values in the row and must never
// be fed back as input features.
type FeatureRow struct {
	Ts     time.Time
	CellID string

	Latitude  *float64
	Longitude *float64
	Operator  *string
	NetMode   *string
	State     *string
	Speed     *float64

	SpeedMean   *float64
	NrxRsrpMean *float64
	NrxRsrqMean *float64
	RssiMean    *float64

	GridID     *string
	GridLatBin *float64
	GridLonBin *float64

	HourOfDay  int
	DayOfWeek  int
	IsWeekend  bool
	IsNight    bool
	IsPeakHour bool
	DayType    int

	RsrpMean     *float64
	RsrqMean     *float64
	SnrMean      *float64
	CqiMean      *float64
	PingAvgMean  *float64
	PingLossMean *float64
	DlMbpsMean   *float64
	UlMbpsMean   *float64

	RsrpLag1 *float64
	RsrpLag3 *float64
	RsrqLag1 *float64
	RsrqLag3 *float64
	SnrLag1  *float64
	SnrLag3  *float64
	PingLag1 *float64
	DlLag1   *float64

	RsrpRoll15m *float64
	RsrqRoll15m *float64
	SnrRoll15m  *float64
	PingRoll15m *float64
	DlRoll15m   *float64

	PingJitterMs   *float64
	PingLossBinary *int
	LatencyMs      *float64

	CellHex *string
	NodeHex *string
	LacHex  *string

	HorizonMinutes int
	SignalClass    string
	LoadProxy      bool

	DlMbpsFwd      *float64
	TrendDeltaMbps *float64
	TrendPct       *float64
	TrendLabel     *string
	TrendClass     int

	// Extended rolling stats keyed by window name ("30m", "1h", "3h").
	// The feature table persists the canonical window set in stable columns;
	// see featureWindowNames.
	DlRoll   map[string]RollStats
	RsrpRoll map[string]RollStats
	SnrRoll  map[string]RollStats

	EnergyKwh      *float64
	BaselineEnergy *float64
}

// featureWindowNames is the canonical window set persisted in cell_features
// columns. Extending it requires a migration adding the matching column
// group; window names absent from a computed row store as NULL.
var featureWindowNames = []string{"30m", "1h", "3h"}

const featureInsertSQL = `
	INSERT INTO cell_features (
		ts, cell_id, latitude, longitude, operator, net_mode, state, speed,
		speed_mean, nrx_rsrp_mean, nrx_rsrq_mean, rssi_mean,
		grid_id, grid_lat_bin, grid_lon_bin,
		hour_of_day, day_of_week, is_weekend, is_night, is_peak_hour, day_type,
		rsrp_mean, rsrq_mean, snr_mean, cqi_mean, ping_avg_mean, ping_loss_mean,
		dl_mbps_mean, ul_mbps_mean,
		rsrp_lag1, rsrp_lag3, rsrq_lag1, rsrq_lag3, snr_lag1, snr_lag3,
		ping_lag1, dl_lag1,
		rsrp_roll15m, rsrq_roll15m, snr_roll15m, ping_roll15m, dl_roll15m,
		ping_jitter_ms, ping_loss_binary, latency_ms,
		cellhex, nodehex, lachex,
		horizon_minutes, signal_class, load_proxy,
		dl_mbps_fwd, trend_delta_mbps, trend_pct, trend_label, trend_class,
		dl_mbps_30m_mean, dl_mbps_30m_std, dl_mbps_30m_min, dl_mbps_30m_max,
		dl_mbps_1h_mean, dl_mbps_1h_std, dl_mbps_1h_min, dl_mbps_1h_max,
		dl_mbps_3h_mean, dl_mbps_3h_std, dl_mbps_3h_min, dl_mbps_3h_max,
		rsrp_30m_mean, rsrp_30m_std, rsrp_1h_mean, rsrp_1h_std,
		rsrp_3h_mean, rsrp_3h_std,
		snr_30m_mean, snr_30m_std, snr_1h_mean, snr_1h_std,
		snr_3h_mean, snr_3h_std,
		energy_kwh, baseline_energy
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func featureInsertArgs(r *FeatureRow) []interface{} {
	args := []interface{}{
		unixSeconds(r.Ts), r.CellID, r.Latitude, r.Longitude, r.Operator,
		r.NetMode, r.State, r.Speed,
		r.SpeedMean, r.NrxRsrpMean, r.NrxRsrqMean, r.RssiMean,
		r.GridID, r.GridLatBin, r.GridLonBin,
		r.HourOfDay, r.DayOfWeek, r.IsWeekend, r.IsNight, r.IsPeakHour, r.DayType,
		r.RsrpMean, r.RsrqMean, r.SnrMean, r.CqiMean, r.PingAvgMean, r.PingLossMean,
		r.DlMbpsMean, r.UlMbpsMean,
		r.RsrpLag1, r.RsrpLag3, r.RsrqLag1, r.RsrqLag3, r.SnrLag1, r.SnrLag3,
		r.PingLag1, r.DlLag1,
		r.RsrpRoll15m, r.RsrqRoll15m, r.SnrRoll15m, r.PingRoll15m, r.DlRoll15m,
		r.PingJitterMs, r.PingLossBinary, r.LatencyMs,
		r.CellHex, r.NodeHex, r.LacHex,
		r.HorizonMinutes, r.SignalClass, r.LoadProxy,
		r.DlMbpsFwd, r.TrendDeltaMbps, r.TrendPct, r.TrendLabel, r.TrendClass,
	}
	for _, w := range featureWindowNames {
		st := r.DlRoll[w]
		args = append(args, st.Mean, st.Std, st.Min, st.Max)
	}
	for _, w := range featureWindowNames {
		st := r.RsrpRoll[w]
		args = append(args, st.Mean, st.Std)
	}
	for _, w := range featureWindowNames {
		st := r.SnrRoll[w]
		args = append(args, st.Mean, st.Std)
	}
	args = append(args, r.EnergyKwh, r.BaselineEnergy)
	return args
}

// ReplaceChunkFeatures atomically replaces all feature rows with ts in
// [start, end]: within one transaction it deletes any previously written rows
// in the span and inserts the newly computed ones. Either both steps commit
// or both roll back, so a rerun over unchanged input is a no-op for readers.
func (db *DB) ReplaceChunkFeatures(ctx context.Context, start, end time.Time, rows []FeatureRow) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		// ErrTxDone means the transaction was already committed or rolled back
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("failed to rollback feature chunk transaction: %v", err)
		}
	}()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM cell_features WHERE ts >= ? AND ts <= ?`,
		unixSeconds(start), unixSeconds(end))
	if err != nil {
		return fmt.Errorf("failed to delete overlapping features: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, featureInsertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, featureInsertArgs(&rows[i])...); err != nil {
			return fmt.Errorf("failed to insert feature row %s@%s: %w",
				rows[i].CellID, rows[i].Ts, err)
		}
	}

	return tx.Commit()
}

// CountFeatures returns the number of feature rows with ts in [start, end].
func (db *DB) CountFeatures(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cell_features WHERE ts >= ? AND ts <= ?`,
		unixSeconds(start), unixSeconds(end)).Scan(&n)
	return n, err
}

// FeaturesInRange returns the feature rows with ts in [start, end], ordered
// by (cell_id, ts).
func (db *DB) FeaturesInRange(ctx context.Context, start, end time.Time) ([]FeatureRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ts, cell_id, latitude, longitude, operator, net_mode, state, speed,
			speed_mean, nrx_rsrp_mean, nrx_rsrq_mean, rssi_mean,
			grid_id, grid_lat_bin, grid_lon_bin,
			hour_of_day, day_of_week, is_weekend, is_night, is_peak_hour, day_type,
			rsrp_mean, rsrq_mean, snr_mean, cqi_mean, ping_avg_mean, ping_loss_mean,
			dl_mbps_mean, ul_mbps_mean,
			rsrp_lag1, rsrp_lag3, rsrq_lag1, rsrq_lag3, snr_lag1, snr_lag3,
			ping_lag1, dl_lag1,
			rsrp_roll15m, rsrq_roll15m, snr_roll15m, ping_roll15m, dl_roll15m,
			ping_jitter_ms, ping_loss_binary, latency_ms,
			cellhex, nodehex, lachex,
			horizon_minutes, signal_class, load_proxy,
			dl_mbps_fwd, trend_delta_mbps, trend_pct, trend_label, trend_class,
			dl_mbps_30m_mean, dl_mbps_30m_std, dl_mbps_30m_min, dl_mbps_30m_max,
			dl_mbps_1h_mean, dl_mbps_1h_std, dl_mbps_1h_min, dl_mbps_1h_max,
			dl_mbps_3h_mean, dl_mbps_3h_std, dl_mbps_3h_min, dl_mbps_3h_max,
			rsrp_30m_mean, rsrp_30m_std, rsrp_1h_mean, rsrp_1h_std,
			rsrp_3h_mean, rsrp_3h_std,
			snr_30m_mean, snr_30m_std, snr_1h_mean, snr_1h_std,
			snr_3h_mean, snr_3h_std,
			energy_kwh, baseline_energy
		FROM cell_features
		WHERE ts >= ? AND ts <= ?
		ORDER BY cell_id, ts`,
		unixSeconds(start), unixSeconds(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	var out []FeatureRow
	for rows.Next() {
		var ts float64
		r := FeatureRow{
			DlRoll:   make(map[string]RollStats, len(featureWindowNames)),
			RsrpRoll: make(map[string]RollStats, len(featureWindowNames)),
			SnrRoll:  make(map[string]RollStats, len(featureWindowNames)),
		}
		dl := make([]RollStats, len(featureWindowNames))
		rsrp := make([]RollStats, len(featureWindowNames))
		snr := make([]RollStats, len(featureWindowNames))

		dest := []interface{}{
			&ts, &r.CellID, &r.Latitude, &r.Longitude, &r.Operator,
			&r.NetMode, &r.State, &r.Speed,
			&r.SpeedMean, &r.NrxRsrpMean, &r.NrxRsrqMean, &r.RssiMean,
			&r.GridID, &r.GridLatBin, &r.GridLonBin,
			&r.HourOfDay, &r.DayOfWeek, &r.IsWeekend, &r.IsNight, &r.IsPeakHour, &r.DayType,
			&r.RsrpMean, &r.RsrqMean, &r.SnrMean, &r.CqiMean, &r.PingAvgMean, &r.PingLossMean,
			&r.DlMbpsMean, &r.UlMbpsMean,
			&r.RsrpLag1, &r.RsrpLag3, &r.RsrqLag1, &r.RsrqLag3, &r.SnrLag1, &r.SnrLag3,
			&r.PingLag1, &r.DlLag1,
			&r.RsrpRoll15m, &r.RsrqRoll15m, &r.SnrRoll15m, &r.PingRoll15m, &r.DlRoll15m,
			&r.PingJitterMs, &r.PingLossBinary, &r.LatencyMs,
			&r.CellHex, &r.NodeHex, &r.LacHex,
			&r.HorizonMinutes, &r.SignalClass, &r.LoadProxy,
			&r.DlMbpsFwd, &r.TrendDeltaMbps, &r.TrendPct, &r.TrendLabel, &r.TrendClass,
		}
		for i := range featureWindowNames {
			dest = append(dest, &dl[i].Mean, &dl[i].Std, &dl[i].Min, &dl[i].Max)
		}
		for i := range featureWindowNames {
			dest = append(dest, &rsrp[i].Mean, &rsrp[i].Std)
		}
		for i := range featureWindowNames {
			dest = append(dest, &snr[i].Mean, &snr[i].Std)
		}
		dest = append(dest, &r.EnergyKwh, &r.BaselineEnergy)

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r.Ts = fromUnixSeconds(ts)
		for i, w := range featureWindowNames {
			r.DlRoll[w] = dl[i]
			r.RsrpRoll[w] = rsrp[i]
			r.SnrRoll[w] = snr[i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// TrendPoint is the reduced feature projection used by the trend-report tool.
type TrendPoint struct {
	Ts         time.Time
	DlMbpsMean *float64
	DlMbpsFwd  *float64
	TrendLabel *string
	EnergyKwh  *float64
}

// TrendSeries returns the throughput/target series for one cell in
// [start, end], ordered by ts.
func (db *DB) TrendSeries(ctx context.Context, cellID string, start, end time.Time) ([]TrendPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ts, dl_mbps_mean, dl_mbps_fwd, trend_label, energy_kwh
		FROM cell_features
		WHERE cell_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts`,
		cellID, unixSeconds(start), unixSeconds(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query trend series: %w", err)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var ts float64
		var p TrendPoint
		if err := rows.Scan(&ts, &p.DlMbpsMean, &p.DlMbpsFwd, &p.TrendLabel, &p.EnergyKwh); err != nil {
			return nil, err
		}
		p.Ts = fromUnixSeconds(ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// FeatureCells returns the distinct cell ids present in cell_features.
func (db *DB) FeatureCells(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT cell_id FROM cell_features ORDER BY cell_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}
