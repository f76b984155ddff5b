package aggregate

import (
	"time"

	"github.com/plugmeter/plugmeter/pkg/types"
)

// DaySummary is the hourly and whole-day view of one calendar day.
type DaySummary struct {
	Day    Day     `json:"day"`
	Hours  HourSet `json:"-"`
	Bucket Bucket  `json:"bucket"`
}

// AvgWatts returns the day's mean watts.
func (s DaySummary) AvgWatts() float64 {
	return s.Bucket.Mean()
}

// TotalCost returns the captured cost of the day.
func (s DaySummary) TotalCost() float64 {
	return s.Bucket.Cost
}

// TotalKWh returns the energy of the day.
func (s DaySummary) TotalKWh() float64 {
	return s.Bucket.KWh
}

// Samples returns how many samples the day holds.
func (s DaySummary) Samples() int {
	return s.Bucket.Count
}

// SummarizeDay builds the summary of day from samples, ignoring samples that
// fall on other days.
func SummarizeDay(day Day, samples []types.Sample, loc *time.Location) DaySummary {
	s := DaySummary{Day: day}
	for _, sample := range samples {
		if DayOf(sample.Timestamp, loc) != day {
			continue
		}
		s.Hours.Merge(sample.Timestamp.In(loc).Hour(), sample)
		s.Bucket.Merge(sample)
	}
	return s
}

// Hourly groups samples by local hour-of-day across the whole range.
func Hourly(samples []types.Sample, loc *time.Location) []types.HourlyStat {
	var h HourSet
	for _, s := range samples {
		h.Merge(s.Timestamp.In(loc).Hour(), s)
	}
	return h.Stats()
}

// Daily groups samples by local calendar day, ordered by date.
func Daily(samples []types.Sample, loc *time.Location) []types.DailyStat {
	a := New(loc)
	for _, s := range samples {
		day := DayOf(s.Timestamp, loc)
		b, ok := a.days[day]
		if !ok {
			b = &Bucket{}
			a.days[day] = b
		}
		b.Merge(s)
	}
	return a.Daily()
}

// Summarize totals every sample.
func Summarize(samples []types.Sample) types.Stats {
	var b Bucket
	for _, s := range samples {
		b.Merge(s)
	}
	return types.Stats{
		TotalKWh:     b.KWh,
		TotalCost:    b.Cost,
		AvgWatts:     b.Mean(),
		MaxWatts:     b.Max,
		ReadingCount: b.Count,
	}
}
