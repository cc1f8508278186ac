package features

import (
	"math"
	"time"

	"github.com/banshee-data/cellular.report/internal/config"
	"github.com/banshee-data/cellular.report/internal/db"
)

// trendEps keeps the percent-change denominator away from zero for idle cells.
const trendEps = 1e-6

var trendClasses = map[string]int{"Down": 0, "Flat": 1, "Up": 2}

// Labeler attaches the forward-horizon training target to feature rows: the
// cell's throughput one horizon ahead, found by a backward as-of match against
// the throughput series shifted earlier by the horizon, and the trend label
// derived from it. These are the only forward-looking values in a row.
type Labeler struct {
	horizon        time.Duration
	horizonMinutes int
	tolerance      time.Duration
	up, down       float64
}

func NewLabeler(cfg *config.FeatureConfig) *Labeler {
	return &Labeler{
		horizon:        cfg.GetHorizon(),
		horizonMinutes: cfg.GetHorizonMinutes(),
		tolerance:      cfg.GetAsOfTolerance(),
		up:             cfg.GetTrendPctUp(),
		down:           cfg.GetTrendPctDown(),
	}
}

type shiftedSample struct {
	ts  time.Time
	val float64
}

// LabelEntity fills DlMbpsFwd and the trend columns for one cell's rows,
// sorted ascending by ts. Matching is three-tiered: the latest shifted sample
// at or before the row's ts and no staler than the tolerance; failing that,
// the previous row's target carried forward; failing that, the row's own
// throughput (a degenerate Flat match).
func (l *Labeler) LabelEntity(rows []db.FeatureRow) {
	// throughput series shifted earlier by the horizon. A uniform shift of
	// the sorted input keeps it ascending, so a single forward pointer
	// serves every match below.
	shifted := make([]shiftedSample, 0, len(rows))
	for i := range rows {
		if rows[i].DlMbpsMean != nil {
			shifted = append(shifted, shiftedSample{
				ts:  rows[i].Ts.Add(-l.horizon),
				val: *rows[i].DlMbpsMean,
			})
		}
	}

	k := -1
	var lastFwd *float64
	for i := range rows {
		r := &rows[i]
		for k+1 < len(shifted) && !shifted[k+1].ts.After(r.Ts) {
			k++
		}

		switch {
		case k >= 0 && r.Ts.Sub(shifted[k].ts) <= l.tolerance:
			v := shifted[k].val
			r.DlMbpsFwd = &v
		case lastFwd != nil:
			v := *lastFwd
			r.DlMbpsFwd = &v
		case r.DlMbpsMean != nil:
			v := *r.DlMbpsMean
			r.DlMbpsFwd = &v
		}
		lastFwd = r.DlMbpsFwd

		l.applyTrend(r)
	}
}

func (l *Labeler) applyTrend(r *db.FeatureRow) {
	r.HorizonMinutes = l.horizonMinutes
	if r.DlMbpsFwd == nil || r.DlMbpsMean == nil {
		r.TrendClass = -1
		return
	}

	delta := *r.DlMbpsFwd - *r.DlMbpsMean
	denom := math.Abs(*r.DlMbpsMean)
	if denom < trendEps {
		denom = trendEps
	}
	pct := delta / denom

	// boundary values land on the non-Flat side
	label := "Flat"
	switch {
	case pct >= l.up:
		label = "Up"
	case pct <= l.down:
		label = "Down"
	}

	r.TrendDeltaMbps = &delta
	r.TrendPct = &pct
	r.TrendLabel = &label
	r.TrendClass = trendClasses[label]
}
