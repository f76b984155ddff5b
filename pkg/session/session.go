// Package session keeps the live accounting state of the device being
// watched and polls its plug.
package session

import (
	"errors"
	"time"

	"github.com/plugmeter/plugmeter/pkg/aggregate"
	"github.com/plugmeter/plugmeter/pkg/efficiency"
	"github.com/plugmeter/plugmeter/pkg/energy"
	"github.com/plugmeter/plugmeter/pkg/types"
)

var (
	// ErrNoDevice is returned when no device is selected.
	ErrNoDevice = errors.New("no device selected")
	// ErrStale is returned for results that belong to a previous selection.
	ErrStale = errors.New("result belongs to a previous device selection")
)

// Update is what processing one reading produced.
type Update struct {
	Reading   types.PowerReading `json:"reading"`
	Sample    types.Sample       `json:"sample"`
	Increment energy.Increment   `json:"-"`
	Rate      float64            `json:"ratePerKWh"`
	Report    efficiency.Report  `json:"efficiency"`
	Summary   efficiency.Summary `json:"summary"`
}

// Session is the accounting state of one selected device. Every field is
// guarded by the Manager's lock.
type Session struct {
	device     types.Device
	generation uint64
	loc        *time.Location

	acc *energy.Accumulator
	agg *aggregate.Aggregator

	on      bool
	loading bool
	last    *Update
}

func newSession(device types.Device, generation uint64, now time.Time, loc *time.Location, seriesSize int) *Session {
	return &Session{
		device:     device,
		generation: generation,
		loc:        loc,
		acc:        energy.NewAccumulator(now, seriesSize),
		agg:        aggregate.New(loc),
		on:         true,
	}
}

// replay loads stored samples, oldest first. Samples of the current day
// count towards the running total while older ones only fill the chart.
func (s *Session) replay(samples []types.Sample, yesterday []types.Sample, now time.Time) {
	today := aggregate.DayOf(now, s.loc)
	for _, sample := range samples {
		if aggregate.DayOf(sample.Timestamp, s.loc) == today {
			s.acc.Replay(sample)
		} else {
			s.acc.Append(sample)
		}
		s.agg.Merge(sample)
	}
	s.agg.Refresh(now)
	s.agg.SetYesterday(aggregate.SummarizeDay(today.AddDays(-1), yesterday, s.loc))
}

// day returns the running figures the efficiency rules evaluate against.
func (s *Session) day(now time.Time) efficiency.Day {
	today := s.agg.Today()
	d := efficiency.Day{
		Now:          now.In(s.loc),
		AverageWatts: today.AvgWatts(),
		TotalCost:    today.TotalCost(),
	}
	if y, ok := s.agg.Yesterday(); ok {
		d.Yesterday = &efficiency.Previous{
			AverageWatts: y.AvgWatts(),
			TotalCost:    y.TotalCost(),
		}
	}
	return d
}

func (s *Session) recentWatts() []float64 {
	samples := s.acc.Series().Samples()
	out := make([]float64, len(samples))
	for i, sample := range samples {
		out[i] = sample.Watts
	}
	return out
}

// process accepts a reading priced at rate.
func (s *Session) process(r types.PowerReading, rate float64, engine *efficiency.Engine) Update {
	s.on = r.IsOn
	sample, inc := s.acc.Sample(r.Timestamp, r.Watts, rate)
	s.agg.Merge(sample)

	d := s.day(r.Timestamp)
	u := Update{
		Reading:   r,
		Sample:    sample,
		Increment: inc,
		Rate:      rate,
		Report:    engine.Evaluate(r.Watts, d),
		Summary:   efficiency.Summarize(s.recentWatts(), r.Watts, rate, r.IsOn, d),
	}
	s.last = &u
	return u
}

// Dashboard is a point-in-time view of the active session.
type Dashboard struct {
	Device        types.Device            `json:"device"`
	Generation    uint64                  `json:"generation"`
	IsOn          bool                    `json:"isOn"`
	Latest        *Update                 `json:"latest,omitempty"`
	Series        []types.Sample          `json:"series"`
	CumulativeKWh float64                 `json:"cumulativeKWh"`
	Today         types.Stats             `json:"today"`
	Yesterday     *types.Stats            `json:"yesterday,omitempty"`
	HourlyMeans   [24]float64             `json:"hourlyMeans"`
	PeakHours     []aggregate.PeakHour    `json:"peakHours"`
	Daily         []types.DailyStat       `json:"daily"`
	Insights      efficiency.CostInsights `json:"insights"`
}

func dayStats(s aggregate.DaySummary) types.Stats {
	return types.Stats{
		TotalKWh:     s.TotalKWh(),
		TotalCost:    s.TotalCost(),
		AvgWatts:     s.AvgWatts(),
		MaxWatts:     s.Bucket.Max,
		ReadingCount: s.Samples(),
	}
}

func (s *Session) dashboard(now time.Time) Dashboard {
	d := Dashboard{
		Device:        s.device,
		Generation:    s.generation,
		IsOn:          s.on,
		Series:        s.acc.Series().Samples(),
		CumulativeKWh: s.acc.Cumulative(),
		Today:         dayStats(s.agg.Today()),
		HourlyMeans:   s.agg.HourlyMeans(),
		PeakHours:     s.agg.PeakHours(),
		Daily:         s.agg.Daily(),
		Insights:      efficiency.Insights(s.day(now)),
	}
	if y, ok := s.agg.Yesterday(); ok {
		stats := dayStats(y)
		d.Yesterday = &stats
	}
	if s.last != nil {
		latest := *s.last
		d.Latest = &latest
	}
	return d
}
