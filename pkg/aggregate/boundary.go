package aggregate

import (
	"time"
)

// Transition is the outcome of observing a timestamp against a DayBoundary.
type Transition int

const (
	// Initial is the first observation, nothing to archive.
	Initial Transition = iota
	// Same means the timestamp falls on the tracked day.
	Same
	// Rollover means the timestamp is on a later day, the tracked day moved.
	Rollover
	// Earlier means the timestamp is on a day before the tracked one.
	Earlier
)

func (t Transition) String() string {
	switch t {
	case Initial:
		return "initial"
	case Same:
		return "same"
	case Rollover:
		return "rollover"
	case Earlier:
		return "earlier"
	default:
		return "unknown"
	}
}

// DayBoundary tracks the current local calendar day. Rollover is detected
// lazily by comparing dates whenever a timestamp is observed.
type DayBoundary struct {
	loc     *time.Location
	current Day
	prev    Day
}

// NewDayBoundary returns a boundary with no tracked day.
func NewDayBoundary(loc *time.Location) *DayBoundary {
	if loc == nil {
		loc = time.Local
	}
	return &DayBoundary{loc: loc}
}

// Observe compares t with the tracked day and advances it on rollover.
func (b *DayBoundary) Observe(t time.Time) Transition {
	day := DayOf(t, b.loc)
	switch {
	case b.current.IsZero():
		b.current = day
		return Initial
	case day == b.current:
		return Same
	case day.Before(b.current):
		return Earlier
	default:
		b.prev = b.current
		b.current = day
		return Rollover
	}
}

// Current returns the tracked day, zero before the first observation.
func (b *DayBoundary) Current() Day {
	return b.current
}

// Previous returns the day tracked before the last rollover.
func (b *DayBoundary) Previous() Day {
	return b.prev
}

// Location returns the zone days are evaluated in.
func (b *DayBoundary) Location() *time.Location {
	return b.loc
}

// Reset forgets the tracked day.
func (b *DayBoundary) Reset() {
	b.current = Day{}
	b.prev = Day{}
}
