package efficiency

import (
	"fmt"
	"math"
	"time"
)

// Thresholds configure the efficiency rules. All values are in watts.
type Thresholds struct {
	// BaselineWatts is the draw considered true standby.
	BaselineWatts float64 `json:"baselineWatts"`
	// PeakWatts is the draw above which usage counts as high.
	PeakWatts float64 `json:"peakWatts"`
	// PhantomCeilingWatts bounds the "phantom load" band above baseline.
	PhantomCeilingWatts float64 `json:"phantomCeilingWatts"`
	// HighDailyAverageWatts marks a consistently heavy day.
	HighDailyAverageWatts float64 `json:"highDailyAverageWatts"`
}

// DefaultThresholds are used unless overridden by flags.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BaselineWatts:         5,
		PeakWatts:             800,
		PhantomCeilingWatts:   50,
		HighDailyAverageWatts: 500,
	}
}

// OffPeak reports whether hour falls in the 23:00 to 05:59 night window.
func OffPeak(hour int) bool {
	return hour >= 23 || hour <= 5
}

// Peak reports whether watts is above the high-usage threshold.
func (t Thresholds) Peak(watts float64) bool {
	return watts > t.PeakWatts
}

// Standby reports whether watts is a phantom load, above baseline but
// below the phantom ceiling.
func (t Thresholds) Standby(watts float64) bool {
	return watts > t.BaselineWatts && watts < t.PhantomCeilingWatts
}

// Score rates a single reading from 0 to 100.
func (t Thresholds) Score(watts float64, hour int) int {
	score := 100
	if t.Peak(watts) {
		score -= 20
	}
	if t.Standby(watts) {
		score -= 10
	}
	if OffPeak(hour) && watts > t.BaselineWatts {
		score -= 15
	}
	return min(100, max(0, score))
}

// Label names the band a score falls in.
func Label(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 75:
		return "Good"
	case score >= 60:
		return "Fair"
	default:
		return "Needs Improvement"
	}
}

// Day carries the running figures of the current day that the rules need.
type Day struct {
	// Now is the time of the reading being evaluated.
	Now time.Time
	// AverageWatts is today's mean watts including the current reading.
	AverageWatts float64
	// TotalCost is today's captured cost.
	TotalCost float64
	// Yesterday is nil when there is no previous-day data.
	Yesterday *Previous
}

// Previous summarises the day before.
type Previous struct {
	AverageWatts float64
	TotalCost    float64
}

// Hour returns the local hour of the reading.
func (d Day) Hour() int {
	return d.Now.Hour()
}

// elapsedHours is the part of today already covered, never below one hour.
func (d Day) elapsedHours() float64 {
	midnight := time.Date(d.Now.Year(), d.Now.Month(), d.Now.Day(), 0, 0, 0, 0, d.Now.Location())
	return math.Max(1, d.Now.Sub(midnight).Hours())
}

// Comparison is today's cost relative to yesterday's.
type Comparison struct {
	Available bool    `json:"available"`
	Percent   float64 `json:"percent"`
}

// NoPreviousData is shown when there is nothing to compare against.
const NoPreviousData = "No previous data"

func (c Comparison) String() string {
	if !c.Available {
		return NoPreviousData
	}
	return fmt.Sprintf("%+.1f%%", c.Percent)
}

// MarshalText renders the comparison the way the dashboard displays it.
func (c Comparison) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Compare returns today's cost change against yesterday in percent. It is
// unavailable without previous data or when yesterday cost nothing.
func Compare(today float64, yesterday *Previous) Comparison {
	if yesterday == nil || yesterday.TotalCost <= 0 {
		return Comparison{}
	}
	return Comparison{
		Available: true,
		Percent:   (today/yesterday.TotalCost - 1) * 100,
	}
}

// CostInsights projects the day's captured cost forward.
type CostInsights struct {
	TodayCost          float64    `json:"todayCost"`
	ProjectedDailyCost float64    `json:"projectedDailyCost"`
	ProjectedMonthly   float64    `json:"projectedMonthlyCost"`
	VersusYesterday    Comparison `json:"versusYesterday"`
}

// Insights scales today's cost to a full day by the hours elapsed so far and
// to a month of 30 such days.
func Insights(d Day) CostInsights {
	daily := d.TotalCost / d.elapsedHours() * 24
	return CostInsights{
		TodayCost:          d.TotalCost,
		ProjectedDailyCost: daily,
		ProjectedMonthly:   daily * 30,
		VersusYesterday:    Compare(d.TotalCost, d.Yesterday),
	}
}
