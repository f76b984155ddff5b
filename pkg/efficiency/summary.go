package efficiency

import (
	"math"
)

// Summary is the running overview shown next to the live chart.
type Summary struct {
	PeakWatts          float64 `json:"peakWatts"`
	AvgWatts           float64 `json:"avgWatts"`
	HourlyCost         float64 `json:"hourlyCost"`
	ProjectedDailyCost float64 `json:"projectedDailyCost"`
}

// Summarize reports the peak and mean of recent watts together with what the
// current load costs per hour and what today will cost if it continues until
// midnight. Cost figures are zero when the device is off.
func Summarize(recent []float64, current, rate float64, on bool, d Day) Summary {
	var s Summary
	for i, w := range recent {
		if i == 0 || w > s.PeakWatts {
			s.PeakWatts = w
		}
		s.AvgWatts += w
	}
	if len(recent) > 0 {
		s.AvgWatts /= float64(len(recent))
	}
	if !on {
		return s
	}

	s.HourlyCost = nonNegative(current / 1000 * rate)
	remaining := float64(24 - d.Hour())
	s.ProjectedDailyCost = nonNegative(d.TotalCost + s.HourlyCost*remaining)
	return s
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
