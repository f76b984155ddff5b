package aggregate

import (
	"testing"
	"time"

	"github.com/plugmeter/plugmeter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLoc = time.FixedZone("IST", 5*3600+1800)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, testLoc)
}

func sample(ts time.Time, watts float64) types.Sample {
	return types.Sample{Timestamp: ts, Watts: watts, KWh: watts / 1000 / 360, Cost: watts / 1000 / 360 * 9.5}
}

func TestBucket(t *testing.T) {
	var b Bucket
	assert.True(t, b.Empty())
	assert.Zero(t, b.Mean())

	b.Merge(types.Sample{Watts: 10, KWh: 1, Cost: 2})
	assert.Equal(t, Bucket{Sum: 10, Count: 1, Max: 10, KWh: 1, Cost: 2}, b)

	b.Merge(types.Sample{Watts: 30, KWh: 1, Cost: 2})
	b.Merge(types.Sample{Watts: 20})
	assert.Equal(t, 60.0, b.Sum)
	assert.Equal(t, 3, b.Count)
	assert.Equal(t, 30.0, b.Max)
	assert.Equal(t, 20.0, b.Mean())
	assert.Equal(t, 4.0, b.Cost)

	t.Run("Zero Watts First", func(t *testing.T) {
		var z Bucket
		z.Merge(types.Sample{Watts: 0})
		assert.Equal(t, 0.0, z.Max)
		assert.Equal(t, 1, z.Count)
	})
}

func TestDay(t *testing.T) {
	d := DayOf(time.Date(2026, 2, 28, 20, 0, 0, 0, time.UTC), testLoc)
	assert.Equal(t, Day{2026, time.March, 1}, d, "local date differs from UTC date")
	assert.Equal(t, Day{2026, time.February, 28}, d.AddDays(-1))
	assert.Equal(t, "2026-03-01", d.String())
	assert.True(t, d.AddDays(-1).Before(d))
	assert.False(t, d.Before(d))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, testLoc), d.Start(testLoc))
}

func TestDayBoundary(t *testing.T) {
	b := NewDayBoundary(testLoc)
	assert.Equal(t, Initial, b.Observe(at(4, 10, 0)))
	assert.Equal(t, Same, b.Observe(at(4, 23, 59)))
	assert.Equal(t, Earlier, b.Observe(at(3, 23, 0)))
	assert.Equal(t, Day{2026, time.March, 4}, b.Current())

	assert.Equal(t, Rollover, b.Observe(at(5, 0, 0)))
	assert.Equal(t, Day{2026, time.March, 5}, b.Current())
	assert.Equal(t, Day{2026, time.March, 4}, b.Previous())
	assert.Equal(t, "rollover", Rollover.String())

	b.Reset()
	assert.True(t, b.Current().IsZero())
}

func TestHourSet(t *testing.T) {
	var h HourSet
	h.Merge(3, types.Sample{Watts: 10})
	h.Merge(3, types.Sample{Watts: 30})
	h.Merge(22, types.Sample{Watts: 5})
	h.Merge(24, types.Sample{Watts: 500})
	h.Merge(-1, types.Sample{Watts: 500})

	means := h.Means()
	assert.Len(t, means, 24)
	assert.Equal(t, 20.0, means[3])
	assert.Equal(t, 5.0, means[22])
	assert.Zero(t, means[0])

	stats := h.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, 3, stats[0].Hour)
	assert.Equal(t, 30.0, stats[0].MaxWatts)
	assert.Equal(t, 22, stats[1].Hour)

	total := h.Total()
	assert.Equal(t, 3, total.Count)
	assert.Equal(t, 30.0, total.Max)
}

func TestPeakHours(t *testing.T) {
	tests := []struct {
		name  string
		means map[int]float64
		want  []PeakHour
	}{
		{
			name:  "threshold is inclusive",
			means: map[int]float64{1: 100, 2: 70, 3: 69.9},
			want:  []PeakHour{{1, 100}, {2, 70}},
		},
		{
			name:  "ties ordered by hour",
			means: map[int]float64{18: 200, 7: 200, 9: 150, 12: 100},
			want:  []PeakHour{{7, 200}, {18, 200}, {9, 150}},
		},
		{
			name:  "all zero has no peak",
			means: map[int]float64{4: 0, 5: 0},
			want:  nil,
		},
		{
			name:  "empty",
			means: map[int]float64{},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h HourSet
			for hour, m := range tt.means {
				h.Merge(hour, types.Sample{Watts: m})
			}
			assert.Equal(t, tt.want, h.PeakHours())
		})
	}
}

func TestAggregator(t *testing.T) {
	t.Run("One Sample Per Hour", func(t *testing.T) {
		a := New(testLoc)
		var want [24]float64
		for hour := 0; hour < 24; hour++ {
			want[hour] = 10.5*float64(hour) + 3.25
			a.Merge(sample(at(4, hour, 30), want[hour]))
		}

		assert.Equal(t, want, a.HourlyMeans())
		today := a.Today()
		stats := today.Hours.Stats()
		require.Len(t, stats, 24)
		for hour, st := range stats {
			assert.Equal(t, hour, st.Hour)
			assert.Equal(t, 1, st.Count, "hour %d", hour)
			assert.Equal(t, want[hour], st.AvgWatts, "hour %d", hour)
		}
	})

	t.Run("Buckets By Local Hour", func(t *testing.T) {
		a := New(testLoc)
		assert.Equal(t, Initial, a.Merge(sample(at(4, 9, 5), 100)))
		assert.Equal(t, Same, a.Merge(sample(at(4, 9, 55), 300)))
		assert.Equal(t, Same, a.Merge(sample(at(4, 14, 0), 50)))

		means := a.HourlyMeans()
		assert.Equal(t, 200.0, means[9])
		assert.Equal(t, 50.0, means[14])

		today := a.Today()
		assert.Equal(t, Day{2026, time.March, 4}, today.Day)
		assert.Equal(t, 3, today.Samples())
		assert.InDelta(t, 150, today.AvgWatts(), 1e-9)

		_, ok := a.Yesterday()
		assert.False(t, ok)
	})

	t.Run("Rollover Archives Yesterday", func(t *testing.T) {
		a := New(testLoc)
		a.Merge(sample(at(4, 22, 0), 400))
		a.Merge(sample(at(4, 23, 59), 200))
		before := a.Today()

		assert.Equal(t, Rollover, a.Merge(sample(at(5, 0, 0), 10)))

		y, ok := a.Yesterday()
		require.True(t, ok)
		assert.Equal(t, Day{2026, time.March, 4}, y.Day)
		assert.Equal(t, before.Bucket, y.Bucket)
		assert.Equal(t, 400.0, y.Hours.Means()[22])

		today := a.Today()
		assert.Equal(t, 1, today.Samples())
		means := a.HourlyMeans()
		assert.Zero(t, means[22], "hourly buckets restart at midnight")
		assert.Equal(t, 10.0, means[0])

		daily := a.Daily()
		require.Len(t, daily, 2)
		assert.Equal(t, 4, daily[0].Day)
		assert.Equal(t, 5, daily[1].Day)
	})

	t.Run("Refresh Rolls Over Without Samples", func(t *testing.T) {
		a := New(testLoc)
		assert.Equal(t, Initial, a.Refresh(at(4, 1, 0)), "no tracked day yet")
		a.Merge(sample(at(4, 12, 0), 100))
		assert.Equal(t, Rollover, a.Refresh(at(5, 0, 1)))
		y, ok := a.Yesterday()
		require.True(t, ok)
		assert.Equal(t, 1, y.Samples())
		assert.Zero(t, a.Today().Samples())
	})

	t.Run("Gap Of Several Days Drops Yesterday", func(t *testing.T) {
		a := New(testLoc)
		a.Merge(sample(at(4, 12, 0), 100))
		a.Merge(sample(at(7, 12, 0), 100))
		_, ok := a.Yesterday()
		assert.False(t, ok)
	})

	t.Run("Earlier Day Only Feeds Daily", func(t *testing.T) {
		a := New(testLoc)
		a.Merge(sample(at(4, 12, 0), 100))
		assert.Equal(t, Earlier, a.Merge(sample(at(3, 12, 0), 300)))
		assert.Equal(t, 100.0, a.HourlyMeans()[12])
		assert.Len(t, a.Daily(), 2)
	})

	t.Run("SetYesterday And Reset", func(t *testing.T) {
		a := New(testLoc)
		day := Day{2026, time.March, 3}
		a.SetYesterday(SummarizeDay(day, []types.Sample{sample(at(3, 8, 0), 80)}, testLoc))
		y, ok := a.Yesterday()
		require.True(t, ok)
		assert.Equal(t, 80.0, y.AvgWatts())

		a.SetYesterday(DaySummary{Day: day})
		_, ok = a.Yesterday()
		assert.False(t, ok, "empty summary means no previous data")

		a.Merge(sample(at(4, 8, 0), 80))
		a.Reset()
		assert.Empty(t, a.Daily())
		assert.True(t, a.Today().Day.IsZero())
	})

	t.Run("Prunes Old Days", func(t *testing.T) {
		a := New(testLoc)
		start := at(1, 12, 0)
		for i := 0; i < RetainDays+5; i++ {
			a.Merge(sample(start.AddDate(0, 0, i), 10))
		}
		assert.LessOrEqual(t, len(a.Daily()), RetainDays)
	})
}

func TestStatelessHelpers(t *testing.T) {
	samples := []types.Sample{
		{Timestamp: at(3, 9, 0), Watts: 100, KWh: 1, Cost: 9.5},
		{Timestamp: at(3, 9, 30), Watts: 300, KWh: 1, Cost: 9.5},
		{Timestamp: at(4, 9, 0), Watts: 200, KWh: 2, Cost: 19},
		{Timestamp: at(4, 20, 0), Watts: 40, KWh: 0.5, Cost: 4.75},
	}

	t.Run("Hourly", func(t *testing.T) {
		got := Hourly(samples, testLoc)
		require.Len(t, got, 2)
		assert.Equal(t, types.HourlyStat{Hour: 9, AvgWatts: 200, MaxWatts: 300, TotalKWh: 4, TotalCost: 38, Count: 3}, got[0])
		assert.Equal(t, 20, got[1].Hour)
	})

	t.Run("Daily", func(t *testing.T) {
		got := Daily(samples, testLoc)
		require.Len(t, got, 2)
		assert.Equal(t, types.DailyStat{Year: 2026, Month: 3, Day: 3, AvgWatts: 200, MaxWatts: 300, TotalKWh: 2, TotalCost: 19, Count: 2}, got[0])
		assert.Equal(t, 4, got[1].Day)
		assert.InDelta(t, 23.75, got[1].TotalCost, 1e-9)
	})

	t.Run("Summarize", func(t *testing.T) {
		got := Summarize(samples)
		assert.Equal(t, 4, got.ReadingCount)
		assert.InDelta(t, 4.5, got.TotalKWh, 1e-9)
		assert.InDelta(t, 160, got.AvgWatts, 1e-9)
		assert.Equal(t, 300.0, got.MaxWatts)
		assert.Equal(t, types.Stats{}, Summarize(nil))
	})

	t.Run("SummarizeDay", func(t *testing.T) {
		got := SummarizeDay(Day{2026, time.March, 4}, samples, testLoc)
		assert.Equal(t, 2, got.Samples())
		assert.InDelta(t, 23.75, got.TotalCost(), 1e-9)
		assert.InDelta(t, 2.5, got.TotalKWh(), 1e-9)
	})
}
