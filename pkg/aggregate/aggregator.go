package aggregate

import (
	"slices"
	"time"

	"github.com/plugmeter/plugmeter/pkg/types"
)

// RetainDays bounds how many daily buckets the Aggregator keeps.
const RetainDays = 31

// Aggregator buckets live samples by local hour for the current day and by
// local calendar day, and keeps yesterday's totals once the day rolls over.
type Aggregator struct {
	boundary  *DayBoundary
	today     HourSet
	days      map[Day]*Bucket
	yesterday *DaySummary
}

// New returns an empty Aggregator evaluating days and hours in loc.
func New(loc *time.Location) *Aggregator {
	return &Aggregator{
		boundary: NewDayBoundary(loc),
		days:     make(map[Day]*Bucket),
	}
}

// Merge adds a sample after checking the day boundary. On rollover the
// current day is archived as yesterday before the sample is merged.
func (a *Aggregator) Merge(s types.Sample) Transition {
	tr := a.observe(s.Timestamp)

	loc := a.boundary.Location()
	day := DayOf(s.Timestamp, loc)
	if day == a.boundary.Current() {
		a.today.Merge(s.Timestamp.In(loc).Hour(), s)
	}

	b, ok := a.days[day]
	if !ok {
		b = &Bucket{}
		a.days[day] = b
	}
	b.Merge(s)
	a.prune()

	return tr
}

// Refresh runs the day boundary check without a sample so the views roll
// over at midnight even while the device reports nothing.
func (a *Aggregator) Refresh(now time.Time) Transition {
	if a.boundary.Current().IsZero() {
		return Initial
	}
	return a.observe(now)
}

func (a *Aggregator) observe(t time.Time) Transition {
	tr := a.boundary.Observe(t)
	if tr == Rollover {
		a.archive()
	}
	return tr
}

// archive moves the finished day into yesterday and starts a fresh hour set.
// Yesterday is only kept when the finished day is the one right before the
// new current day.
func (a *Aggregator) archive() {
	prev := a.boundary.Previous()
	if prev.AddDays(1) == a.boundary.Current() {
		summary := DaySummary{Day: prev, Hours: a.today}
		if b, ok := a.days[prev]; ok {
			summary.Bucket = *b
		}
		a.yesterday = &summary
	} else {
		a.yesterday = nil
	}
	a.today = HourSet{}
}

func (a *Aggregator) prune() {
	if len(a.days) <= RetainDays {
		return
	}
	cutoff := a.boundary.Current().AddDays(-RetainDays + 1)
	for d := range a.days {
		if d.Before(cutoff) {
			delete(a.days, d)
		}
	}
}

// Today returns the current day's totals.
func (a *Aggregator) Today() DaySummary {
	day := a.boundary.Current()
	s := DaySummary{Day: day, Hours: a.today}
	if b, ok := a.days[day]; ok {
		s.Bucket = *b
	}
	return s
}

// Yesterday returns the archived previous day and false when there is none.
func (a *Aggregator) Yesterday() (DaySummary, bool) {
	if a.yesterday == nil {
		return DaySummary{}, false
	}
	return *a.yesterday, true
}

// SetYesterday installs a previous-day summary built elsewhere, typically
// from stored readings after a device switch.
func (a *Aggregator) SetYesterday(s DaySummary) {
	if s.Bucket.Empty() {
		a.yesterday = nil
		return
	}
	a.yesterday = &s
}

// HourlyMeans returns exactly 24 mean-watt values for today, 0 for hours
// without samples.
func (a *Aggregator) HourlyMeans() [24]float64 {
	return a.today.Means()
}

// PeakHours returns today's peak hours.
func (a *Aggregator) PeakHours() []PeakHour {
	return a.today.PeakHours()
}

// Daily returns the retained daily buckets ordered by date.
func (a *Aggregator) Daily() []types.DailyStat {
	days := make([]Day, 0, len(a.days))
	for d := range a.days {
		days = append(days, d)
	}
	slices.SortFunc(days, func(x, y Day) int {
		switch {
		case x.Before(y):
			return -1
		case y.Before(x):
			return 1
		default:
			return 0
		}
	})
	out := make([]types.DailyStat, 0, len(days))
	for _, d := range days {
		out = append(out, d.Stat(*a.days[d]))
	}
	return out
}

// Reset drops every bucket, the archived yesterday and the tracked day.
func (a *Aggregator) Reset() {
	a.boundary.Reset()
	a.today = HourSet{}
	a.days = make(map[Day]*Bucket)
	a.yesterday = nil
}

// Location returns the zone the aggregator buckets in.
func (a *Aggregator) Location() *time.Location {
	return a.boundary.Location()
}
