package energy

import (
	"math"
	"time"

	"github.com/plugmeter/plugmeter/pkg/types"
)

// Increment is the result of accepting one power sample.
type Increment struct {
	// Energy is the kWh consumed since the previous sample.
	Energy float64
	// Cost is Energy priced at the rate passed to Accept.
	Cost float64
	// Cumulative is the running kWh total after this sample.
	Cumulative float64
}

// Accumulator integrates instantaneous watts into kWh for a single device.
// It is not safe for concurrent use, callers serialise access per device.
type Accumulator struct {
	prev       time.Time
	cumulative float64
	series     *Series
}

// NewAccumulator starts the delta clock at now with an empty series of the
// given capacity. A non-positive size uses DefaultSeriesSize.
func NewAccumulator(now time.Time, size int) *Accumulator {
	return &Accumulator{
		prev:   now,
		series: NewSeries(size),
	}
}

// Accept converts watts observed at ts into an energy and cost increment.
// Timestamps at or before the previous one yield zero energy and leave the
// delta clock untouched.
func (a *Accumulator) Accept(ts time.Time, watts, rate float64) Increment {
	var kwh float64
	if ts.After(a.prev) {
		kwh = Energy(watts, ts.Sub(a.prev))
		a.prev = ts
	}

	a.cumulative = math.Max(0, a.cumulative+kwh)

	return Increment{
		Energy:     kwh,
		Cost:       Cost(kwh, rate),
		Cumulative: a.cumulative,
	}
}

// Sample accepts watts at ts and appends the resulting sample to the series.
func (a *Accumulator) Sample(ts time.Time, watts, rate float64) (types.Sample, Increment) {
	inc := a.Accept(ts, watts, rate)
	s := types.Sample{
		Timestamp: ts,
		Watts:     watts,
		KWh:       inc.Energy,
		Cost:      inc.Cost,
	}
	a.series.Push(s)
	return s, inc
}

// Append pushes an already costed sample onto the series without touching
// the running total or the delta clock.
func (a *Accumulator) Append(s types.Sample) {
	a.series.Push(s)
}

// Replay appends an already costed sample, such as one loaded from the store,
// and adds its stored energy to the running total. The delta clock is not
// moved so the next live sample is measured from the last live one.
func (a *Accumulator) Replay(s types.Sample) {
	a.series.Push(s)
	if s.KWh > 0 {
		a.cumulative += s.KWh
	}
}

// Reset zeroes the running total, clears the series and restarts the delta
// clock at now.
func (a *Accumulator) Reset(now time.Time) {
	a.prev = now
	a.cumulative = 0
	a.series.Clear()
}

// Cumulative returns the running kWh total.
func (a *Accumulator) Cumulative() float64 {
	return a.cumulative
}

// LastUpdate returns the timestamp the next delta is measured from.
func (a *Accumulator) LastUpdate() time.Time {
	return a.prev
}

// Series returns the bounded sample series.
func (a *Accumulator) Series() *Series {
	return a.series
}

// Energy returns the kWh drawn by a constant load of watts over elapsed.
// Negative or non-finite results are clamped to zero.
func Energy(watts float64, elapsed time.Duration) float64 {
	kwh := watts / 1000 * elapsed.Hours()
	if kwh < 0 || math.IsNaN(kwh) || math.IsInf(kwh, 0) {
		return 0
	}
	return kwh
}

// Cost prices kwh at rate.
func Cost(kwh, rate float64) float64 {
	return kwh * rate
}
