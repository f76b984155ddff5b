package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/plugmeter/plugmeter/pkg/aggregate"
	"github.com/plugmeter/plugmeter/pkg/types"
)

// AggregateKind selects the shape returned by Aggregate.
type AggregateKind string

const (
	AggregateHourly AggregateKind = "hourly"
	AggregateDaily  AggregateKind = "daily"
	AggregateStats  AggregateKind = "stats"
)

// ParseAggregateKind validates a kind received from a client.
func ParseAggregateKind(s string) (AggregateKind, error) {
	switch k := AggregateKind(s); k {
	case AggregateHourly, AggregateDaily, AggregateStats:
		return k, nil
	default:
		return "", fmt.Errorf("unknown aggregate type: %q", s)
	}
}

// History holds the result of an aggregation, only the field for the
// requested kind is set.
type History struct {
	Hourly []types.HourlyStat `json:"hourly,omitempty"`
	Daily  []types.DailyStat  `json:"daily,omitempty"`
	Stats  *types.Stats       `json:"stats,omitempty"`
}

// Aggregate reads every reading of deviceID in [start, end) and buckets them
// by local hour, by local day, or into a single summary.
func Aggregate(ctx context.Context, db Database, deviceID string, kind AggregateKind, start, end time.Time, loc *time.Location) (History, error) {
	readings, err := db.GetReadings(ctx, deviceID, start, end, 0)
	if err != nil {
		return History{}, fmt.Errorf("failed to get readings: %w", err)
	}
	samples := Samples(readings)

	switch kind {
	case AggregateHourly:
		return History{Hourly: aggregate.Hourly(samples, loc)}, nil
	case AggregateDaily:
		return History{Daily: aggregate.Daily(samples, loc)}, nil
	case AggregateStats:
		stats := aggregate.Summarize(samples)
		return History{Stats: &stats}, nil
	default:
		return History{}, fmt.Errorf("unknown aggregate type: %q", kind)
	}
}

// Samples converts newest-first readings into oldest-first samples.
func Samples(readings []types.Reading) []types.Sample {
	out := make([]types.Sample, len(readings))
	for i, r := range readings {
		out[len(readings)-1-i] = r.Sample
	}
	return out
}
