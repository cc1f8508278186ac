package features

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cellular.report/internal/config"
	"github.com/banshee-data/cellular.report/internal/db"
)

// Aggregator computes the causal sequence features of one cell: per-sample
// value copies, positional lags, and backward-looking rolling statistics.
// A feature at time t depends only on samples of the same cell with ts <= t,
// so rows can never leak information across cells or from the future.
type Aggregator struct {
	baseWindow  time.Duration
	windows     map[string]time.Duration
	windowNames []string // sorted for deterministic iteration
}

func NewAggregator(cfg *config.FeatureConfig) *Aggregator {
	windows := cfg.GetRollingWindows()
	names := make([]string, 0, len(windows))
	for name := range windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Aggregator{
		baseWindow:  cfg.GetBaseWindow(),
		windows:     windows,
		windowNames: names,
	}
}

// MaxWindow returns the longest configured rolling window. The scheduler uses
// it to size the lookback buffer in front of each chunk.
func (a *Aggregator) MaxWindow() time.Duration {
	max := a.baseWindow
	for _, d := range a.windows {
		if d > max {
			max = d
		}
	}
	return max
}

// lagValue returns a copy of the value k positions back in the cell's
// sequence, or nil when fewer than k earlier samples exist.
func lagValue(vals []*float64, i, k int) *float64 {
	if i-k < 0 || vals[i-k] == nil {
		return nil
	}
	v := *vals[i-k]
	return &v
}

// collectWindow gathers the non-nil values at indices [lo, i].
func collectWindow(vals []*float64, lo, i int) []float64 {
	xs := make([]float64, 0, i-lo+1)
	for j := lo; j <= i; j++ {
		if vals[j] != nil {
			xs = append(xs, *vals[j])
		}
	}
	return xs
}

// windowMean returns the mean of xs, or nil when the window holds no values.
func windowMean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m := stat.Mean(xs, nil)
	return &m
}

// windowStats computes the window statistics. A single-value window has a
// defined mean but an undefined (nil) sample standard deviation.
func windowStats(xs []float64, withMinMax bool) db.RollStats {
	st := db.RollStats{Mean: windowMean(xs)}
	if len(xs) >= 2 {
		sd := stat.StdDev(xs, nil)
		st.Std = &sd
	}
	if withMinMax && len(xs) > 0 {
		mn, mx := xs[0], xs[0]
		for _, x := range xs[1:] {
			if x < mn {
				mn = x
			}
			if x > mx {
				mx = x
			}
		}
		st.Min = &mn
		st.Max = &mx
	}
	return st
}

// EntityRows computes one feature row per sample for a single cell. Samples
// must be sorted ascending by ts; rolling windows span (t-window, t] and lags
// count positions in the sequence, not wall time.
func (a *Aggregator) EntityRows(samples []db.CleanSample) []db.FeatureRow {
	n := len(samples)
	if n == 0 {
		return nil
	}

	times := make([]time.Time, n)
	rsrp := make([]*float64, n)
	rsrq := make([]*float64, n)
	snr := make([]*float64, n)
	ping := make([]*float64, n)
	dl := make([]*float64, n)
	for i := range samples {
		times[i] = samples[i].Ts
		rsrp[i] = samples[i].Rsrp
		rsrq[i] = samples[i].Rsrq
		snr[i] = samples[i].Snr
		ping[i] = samples[i].PingAvgMs
		dl[i] = samples[i].DlMbps
	}

	// one lo pointer per window duration, shared by every metric
	baseLo := 0
	extLo := make(map[string]int, len(a.windowNames))

	rows := make([]db.FeatureRow, n)
	for i := range samples {
		s := &samples[i]
		r := &rows[i]

		r.Ts = s.Ts
		r.CellID = s.CellID
		r.Latitude = s.Latitude
		r.Longitude = s.Longitude
		r.Operator = s.Operator
		r.NetMode = s.NetMode
		r.State = s.State
		r.Speed = s.Speed
		r.CellHex = s.CellHex
		r.NodeHex = s.NodeHex
		r.LacHex = s.LacHex

		r.SpeedMean = s.Speed
		r.NrxRsrpMean = s.NrxRsrp
		r.NrxRsrqMean = s.NrxRsrq
		r.RssiMean = s.Rssi
		r.RsrpMean = s.Rsrp
		r.RsrqMean = s.Rsrq
		r.SnrMean = s.Snr
		r.CqiMean = s.Cqi
		r.PingAvgMean = s.PingAvgMs
		r.PingLossMean = s.PingLossPct
		r.DlMbpsMean = s.DlMbps
		r.UlMbpsMean = s.UlMbps

		r.RsrpLag1 = lagValue(rsrp, i, 1)
		r.RsrpLag3 = lagValue(rsrp, i, 3)
		r.RsrqLag1 = lagValue(rsrq, i, 1)
		r.RsrqLag3 = lagValue(rsrq, i, 3)
		r.SnrLag1 = lagValue(snr, i, 1)
		r.SnrLag3 = lagValue(snr, i, 3)
		r.PingLag1 = lagValue(ping, i, 1)
		r.DlLag1 = lagValue(dl, i, 1)

		cutoff := s.Ts.Add(-a.baseWindow)
		for !times[baseLo].After(cutoff) {
			baseLo++
		}
		r.RsrpRoll15m = windowMean(collectWindow(rsrp, baseLo, i))
		r.RsrqRoll15m = windowMean(collectWindow(rsrq, baseLo, i))
		r.SnrRoll15m = windowMean(collectWindow(snr, baseLo, i))
		r.PingRoll15m = windowMean(collectWindow(ping, baseLo, i))
		r.DlRoll15m = windowMean(collectWindow(dl, baseLo, i))

		r.DlRoll = make(map[string]db.RollStats, len(a.windowNames))
		r.RsrpRoll = make(map[string]db.RollStats, len(a.windowNames))
		r.SnrRoll = make(map[string]db.RollStats, len(a.windowNames))
		for _, name := range a.windowNames {
			cutoff := s.Ts.Add(-a.windows[name])
			lo := extLo[name]
			for !times[lo].After(cutoff) {
				lo++
			}
			extLo[name] = lo
			r.DlRoll[name] = windowStats(collectWindow(dl, lo, i), true)
			r.RsrpRoll[name] = windowStats(collectWindow(rsrp, lo, i), false)
			r.SnrRoll[name] = windowStats(collectWindow(snr, lo, i), false)
		}
	}

	return rows
}
