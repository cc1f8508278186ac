package features

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/cellular.report/internal/config"
	"github.com/banshee-data/cellular.report/internal/db"
)

// signal classes ordered weakest to strongest; Unknown sits outside the order
var signalOrder = []string{"Very Weak", "Weak", "Good", "Excellent"}

const signalUnknown = "Unknown"

// Synthesizer computes the deterministic, side-effect-free derived metrics of
// a feature row: signal classification, ping-derived metrics, temporal
// context, grid bucket, and the energy estimate.
type Synthesizer struct {
	cfg *config.FeatureConfig
}

func NewSynthesizer(cfg *config.FeatureConfig) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

// ClassifySignal derives the signal class from rsrp with an snr-only
// fallback, then nudges the class one ordinal step on strong or weak
// rsrq/snr, clamped to the order boundaries.
func (s *Synthesizer) ClassifySignal(rsrp, rsrq, snr *float64) string {
	base := s.baseClassFromRsrp(rsrp)
	if base == signalUnknown {
		if snr != nil {
			switch {
			case *snr >= s.cfg.GetSnrGood():
				return "Good"
			case *snr >= s.cfg.GetSnrWeak():
				return "Weak"
			default:
				return "Very Weak"
			}
		}
		return signalUnknown
	}

	idx := 0
	for i, c := range signalOrder {
		if c == base {
			idx = i
			break
		}
	}

	if (rsrq != nil && *rsrq >= s.cfg.GetRsrqStrong()) || (snr != nil && *snr >= s.cfg.GetSnrGood()) {
		if idx < len(signalOrder)-1 {
			idx++
		}
	}
	if (rsrq != nil && *rsrq <= s.cfg.GetRsrqWeak()) || (snr != nil && *snr <= s.cfg.GetSnrWeak()) {
		if idx > 0 {
			idx--
		}
	}

	return signalOrder[idx]
}

func (s *Synthesizer) baseClassFromRsrp(rsrp *float64) string {
	if rsrp == nil {
		return signalUnknown
	}
	switch {
	case *rsrp >= s.cfg.GetRsrpExcellent():
		return "Excellent"
	case *rsrp >= s.cfg.GetRsrpGood():
		return "Good"
	case *rsrp >= s.cfg.GetRsrpWeak():
		return "Weak"
	default:
		return "Very Weak"
	}
}

// EstimateEnergy returns the linear energy-consumption estimate (kWh) for a
// throughput value and the no-optimization baseline figure derived from it.
func (s *Synthesizer) EstimateEnergy(dlMbps *float64) (energy, baseline *float64) {
	if dlMbps == nil {
		return nil, nil
	}
	e := 0.05 + 0.002*(*dlMbps)
	b := e * 1.15
	return &e, &b
}

// night and peak hour sets (hour of day, UTC)
var (
	nightHours = map[int]bool{23: true, 0: true, 1: true, 2: true, 3: true, 4: true, 5: true}
	peakHours  = map[int]bool{8: true, 9: true, 10: true, 18: true, 19: true, 20: true, 21: true}
)

// applyTemporal fills the temporal context columns. Day-of-week is 0=Monday
// through 6=Sunday.
func applyTemporal(r *db.FeatureRow, ts time.Time) {
	ts = ts.UTC()
	r.HourOfDay = ts.Hour()
	r.DayOfWeek = (int(ts.Weekday()) + 6) % 7
	r.IsWeekend = r.DayOfWeek >= 5
	r.IsNight = nightHours[r.HourOfDay]
	r.IsPeakHour = peakHours[r.HourOfDay]
	if r.DayOfWeek < 5 {
		r.DayType = 0
	} else {
		r.DayType = 1
	}
}

// grid bucket size: coordinates divided by this step and rounded to three
// decimals form the bucket id
const gridStep = 0.003

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// applyGrid fills the grid bucket columns from the sample coordinates.
func applyGrid(r *db.FeatureRow, lat, lon *float64) {
	if lat != nil {
		b := round3(*lat)
		r.GridLatBin = &b
	}
	if lon != nil {
		b := round3(*lon)
		r.GridLonBin = &b
	}
	if lat != nil && lon != nil {
		id := fmt.Sprintf("%.3f_%.3f", round3(*lat/gridStep), round3(*lon/gridStep))
		r.GridID = &id
	}
}

// Apply fills the synthesized columns of a feature row from its sample.
func (s *Synthesizer) Apply(r *db.FeatureRow, sample *db.CleanSample) {
	applyTemporal(r, sample.Ts)
	applyGrid(r, sample.Latitude, sample.Longitude)

	r.SignalClass = s.ClassifySignal(sample.Rsrp, sample.Rsrq, sample.Snr)
	r.LoadProxy = true

	if sample.PingMaxMs != nil && sample.PingMinMs != nil {
		j := *sample.PingMaxMs - *sample.PingMinMs
		r.PingJitterMs = &j
	}
	r.LatencyMs = sample.PingAvgMs
	if sample.PingLossPct != nil {
		b := 0
		if *sample.PingLossPct > 0 {
			b = 1
		}
		r.PingLossBinary = &b
	}

	r.EnergyKwh, r.BaselineEnergy = s.EstimateEnergy(sample.DlMbps)
}
