package efficiency

import (
	"fmt"
	"math"
)

// UsageAnalysis is the human-readable status of the latest reading.
type UsageAnalysis struct {
	Standby     string   `json:"standby"`
	PeakStatus  string   `json:"peakStatus"`
	Explanation string   `json:"explanation"`
	Reasons     []string `json:"reasons,omitempty"`
}

// Analyze describes the reading against the thresholds and today's average.
func (t Thresholds) Analyze(watts float64, d Day) UsageAnalysis {
	offPeak := OffPeak(d.Hour())
	standby := t.Standby(watts)
	peak := t.Peak(watts)
	aboveAverage := watts > d.AverageWatts*1.5

	var a UsageAnalysis
	switch {
	case standby && offPeak:
		a.Standby = "Off-peak standby power waste detected"
	case standby:
		a.Standby = "Possible standby power waste detected"
	case watts <= t.BaselineWatts:
		a.Standby = "Normal standby power"
	default:
		a.Standby = "Not in standby"
	}

	switch {
	case peak && offPeak:
		a.PeakStatus = "Critical: High usage during off-peak hours"
	case peak:
		a.PeakStatus = "High usage detected - Consider rescheduling"
	case aboveAverage:
		a.PeakStatus = "Above average usage detected"
	default:
		a.PeakStatus = "Normal usage pattern"
	}

	w := formatWatts(watts)
	switch {
	case peak:
		a.Explanation = fmt.Sprintf("Peak usage (%sW > %sW threshold)", w, formatWatts(t.PeakWatts))
	case aboveAverage:
		a.Explanation = fmt.Sprintf("Above average (%sW > %.0fW avg)", w, math.Round(d.AverageWatts))
	case standby:
		a.Explanation = fmt.Sprintf("Standby waste (%sW > %sW baseline)", w, formatWatts(t.BaselineWatts))
	default:
		a.Explanation = fmt.Sprintf("Normal operation (%sW)", w)
	}

	if peak {
		a.Reasons = append(a.Reasons, "High power usage detected")
	}
	if d.AverageWatts > t.HighDailyAverageWatts {
		a.Reasons = append(a.Reasons, "Above average daily consumption")
	}
	if standby {
		a.Reasons = append(a.Reasons, "Standby power detected")
	}
	return a
}

func formatWatts(w float64) string {
	return fmt.Sprintf("%g", math.Round(w*10)/10)
}
