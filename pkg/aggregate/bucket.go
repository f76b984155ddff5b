package aggregate

import (
	"fmt"
	"time"

	"github.com/plugmeter/plugmeter/pkg/types"
)

// Bucket accumulates watt statistics plus energy and cost totals.
// The zero value is an empty bucket.
type Bucket struct {
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
	Max   float64 `json:"max"`
	KWh   float64 `json:"kWh"`
	Cost  float64 `json:"cost"`
}

// Merge adds one sample to the bucket.
func (b *Bucket) Merge(s types.Sample) {
	if b.Count == 0 || s.Watts > b.Max {
		b.Max = s.Watts
	}
	b.Sum += s.Watts
	b.Count++
	b.KWh += s.KWh
	b.Cost += s.Cost
}

// Mean returns the average watts, 0 for an empty bucket.
func (b Bucket) Mean() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.Sum / float64(b.Count)
}

// Empty reports whether no sample has been merged.
func (b Bucket) Empty() bool {
	return b.Count == 0
}

// Day is a local calendar date.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// Start returns local midnight of d.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the date n days after d, n may be negative.
func (d Day) AddDays(n int) Day {
	y, m, dd := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC).Date()
	return Day{Year: y, Month: m, Day: dd}
}

// Before reports whether d is an earlier date than o.
func (d Day) Before(o Day) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// IsZero reports whether d is unset.
func (d Day) IsZero() bool {
	return d == Day{}
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Stat converts a daily bucket into its API form.
func (d Day) Stat(b Bucket) types.DailyStat {
	return types.DailyStat{
		Year:      d.Year,
		Month:     int(d.Month),
		Day:       d.Day,
		AvgWatts:  b.Mean(),
		MaxWatts:  b.Max,
		TotalKWh:  b.KWh,
		TotalCost: b.Cost,
		Count:     b.Count,
	}
}
