package energy

import (
	"github.com/plugmeter/plugmeter/pkg/types"
)

// DefaultSeriesSize is how many recent samples the live chart keeps.
const DefaultSeriesSize = 30

// Series keeps the most recent samples in arrival order, evicting the oldest
// once full.
type Series struct {
	size    int
	samples []types.Sample
}

// NewSeries returns an empty series holding at most size samples.
func NewSeries(size int) *Series {
	if size <= 0 {
		size = DefaultSeriesSize
	}
	return &Series{
		size:    size,
		samples: make([]types.Sample, 0, size),
	}
}

// Push appends s, dropping the oldest sample when the series is full.
func (s *Series) Push(sample types.Sample) {
	if len(s.samples) == s.size {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:s.size-1]
	}
	s.samples = append(s.samples, sample)
}

// Samples returns a copy of the series, oldest first.
func (s *Series) Samples() []types.Sample {
	out := make([]types.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Len returns the number of samples held.
func (s *Series) Len() int {
	return len(s.samples)
}

// Cap returns the maximum number of samples held.
func (s *Series) Cap() int {
	return s.size
}

// Latest returns the newest sample and false when the series is empty.
func (s *Series) Latest() (types.Sample, bool) {
	if len(s.samples) == 0 {
		return types.Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// PeakWatts returns the highest watts in the series, 0 when empty.
func (s *Series) PeakWatts() float64 {
	var peak float64
	for _, sample := range s.samples {
		peak = max(peak, sample.Watts)
	}
	return peak
}

// AverageWatts returns the mean watts in the series, 0 when empty.
func (s *Series) AverageWatts() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range s.samples {
		sum += sample.Watts
	}
	return sum / float64(len(s.samples))
}

// Clear drops every sample.
func (s *Series) Clear() {
	s.samples = s.samples[:0]
}
