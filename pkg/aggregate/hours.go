package aggregate

import (
	"cmp"
	"slices"

	"github.com/plugmeter/plugmeter/pkg/types"
)

// PeakFraction is the share of the highest hourly mean an hour must reach to
// count as a peak hour.
const PeakFraction = 0.7

// HourSet holds one bucket per hour-of-day. Hours without samples stay empty.
type HourSet [24]Bucket

// Merge adds s to the bucket for hour. Hours outside 0..23 are ignored.
func (h *HourSet) Merge(hour int, s types.Sample) {
	if hour < 0 || hour > 23 {
		return
	}
	h[hour].Merge(s)
}

// Means returns the mean watts of every hour, 0 for hours without samples.
func (h *HourSet) Means() [24]float64 {
	var out [24]float64
	for i := range h {
		out[i] = h[i].Mean()
	}
	return out
}

// Stats returns the non-empty hours in ascending order.
func (h *HourSet) Stats() []types.HourlyStat {
	var out []types.HourlyStat
	for hour, b := range h {
		if b.Empty() {
			continue
		}
		out = append(out, hourStat(hour, b))
	}
	return out
}

// Total merges every hour into a single bucket.
func (h *HourSet) Total() Bucket {
	var total Bucket
	for _, b := range h {
		if b.Empty() {
			continue
		}
		if total.Count == 0 || b.Max > total.Max {
			total.Max = b.Max
		}
		total.Sum += b.Sum
		total.Count += b.Count
		total.KWh += b.KWh
		total.Cost += b.Cost
	}
	return total
}

// PeakHour is an hour whose mean watts qualified as peak.
type PeakHour struct {
	Hour      int     `json:"hour"`
	MeanWatts float64 `json:"meanWatts"`
}

// PeakHours returns the hours whose mean is at least PeakFraction of the
// highest hourly mean, highest first, equal means ordered by hour. It is
// empty when no hour has a positive mean.
func (h *HourSet) PeakHours() []PeakHour {
	var top float64
	for _, b := range h {
		top = max(top, b.Mean())
	}
	if top <= 0 {
		return nil
	}

	threshold := top * PeakFraction
	var peaks []PeakHour
	for hour, b := range h {
		if b.Empty() {
			continue
		}
		if m := b.Mean(); m >= threshold {
			peaks = append(peaks, PeakHour{Hour: hour, MeanWatts: m})
		}
	}
	slices.SortStableFunc(peaks, func(a, b PeakHour) int {
		if c := cmp.Compare(b.MeanWatts, a.MeanWatts); c != 0 {
			return c
		}
		return cmp.Compare(a.Hour, b.Hour)
	})
	return peaks
}

func hourStat(hour int, b Bucket) types.HourlyStat {
	return types.HourlyStat{
		Hour:      hour,
		AvgWatts:  b.Mean(),
		MaxWatts:  b.Max,
		TotalKWh:  b.KWh,
		TotalCost: b.Cost,
		Count:     b.Count,
	}
}
