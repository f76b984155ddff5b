package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/plugmeter/plugmeter/pkg/efficiency"
	"github.com/plugmeter/plugmeter/pkg/metrics"
	"github.com/plugmeter/plugmeter/pkg/plug"
	"github.com/plugmeter/plugmeter/pkg/plug/plugmock"
	"github.com/plugmeter/plugmeter/pkg/rate"
	"github.com/plugmeter/plugmeter/pkg/retry"
	"github.com/plugmeter/plugmeter/pkg/storage"
	"github.com/plugmeter/plugmeter/pkg/storage/storagemock"
	"github.com/plugmeter/plugmeter/pkg/types"
)

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type fixture struct {
	mgr  *Manager
	db   *storagemock.MockDatabase
	plug *plugmock.MockPlug
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := &storagemock.MockDatabase{}
	p := &plugmock.MockPlug{}
	catalog := plug.NewCatalog(
		types.Device{ID: "a", Name: "Deep Freezer"},
		types.Device{ID: "b", Name: "Computer"},
	)
	db.On("GetDeviceSettings", mock.Anything, mock.Anything).Return(types.DeviceSettings{RatePerKWh: 10, Currency: "INR"}, types.CurrentSettingsVersion, nil)

	mgr := NewManager(plug.NewMap(p, catalog), db, rate.New(db, 9.5), efficiency.NewEngine(), metrics.New())
	mgr.loc = time.UTC
	mgr.now = func() time.Time { return testNow }
	mgr.policy = retry.Policy{Attempts: 2, Base: time.Millisecond, Cap: time.Millisecond}
	return &fixture{mgr: mgr, db: db, plug: p}
}

func (f *fixture) emptyHistory() {
	f.db.On("GetReadings", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
}

func reading(ts time.Time, watts, kwh, cost float64) types.Reading {
	return types.Reading{DeviceID: "a", Sample: types.Sample{Timestamp: ts, Watts: watts, KWh: kwh, Cost: cost}}
}

func TestSwitch(t *testing.T) {
	ctx := context.Background()

	t.Run("Restores History", func(t *testing.T) {
		f := newFixture(t)
		lastNight := reading(testNow.Add(-16*time.Hour), 100, 1, 9.5)
		f.db.On("GetReadings", mock.Anything, "a", testNow.Add(-24*time.Hour), testNow, storage.MaxReadings).Return([]types.Reading{
			reading(testNow.Add(-time.Hour), 300, 0.25, 2),
			reading(testNow.Add(-2*time.Hour), 200, 0.5, 4.75),
			lastNight,
		}, nil)
		f.db.On("GetReadings", mock.Anything, "a", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), 0).Return([]types.Reading{
			lastNight,
			reading(testNow.Add(-28*time.Hour), 50, 2, 19),
		}, nil)

		device, err := f.mgr.Switch(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "a", device.ID, "empty id selects the first device")

		d, err := f.mgr.Dashboard()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), d.Generation)
		assert.InDelta(t, 0.75, d.CumulativeKWh, 1e-12, "only today's energy counts")
		assert.Len(t, d.Series, 3)
		assert.Equal(t, 2, d.Today.ReadingCount)
		assert.InDelta(t, 6.75, d.Today.TotalCost, 1e-12)
		assert.Equal(t, 200.0, d.HourlyMeans[10])
		assert.Equal(t, 300.0, d.HourlyMeans[11])
		require.NotNil(t, d.Yesterday)
		assert.Equal(t, 2, d.Yesterday.ReadingCount)
		assert.InDelta(t, 28.5, d.Yesterday.TotalCost, 1e-12)
		assert.True(t, d.Insights.VersusYesterday.Available)
		assert.Len(t, d.Daily, 2)
	})

	t.Run("Unknown Device", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Switch(ctx, "zzz")
		assert.ErrorIs(t, err, plug.ErrNotFound)
		_, err = f.mgr.Dashboard()
		assert.ErrorIs(t, err, ErrNoDevice)
	})

	t.Run("History Failure", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetReadings", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))
		_, err := f.mgr.Switch(ctx, "b")
		require.NoError(t, err)
		d, err := f.mgr.Dashboard()
		require.NoError(t, err)
		assert.Equal(t, "b", d.Device.ID)
		assert.Empty(t, d.Series)
		assert.Nil(t, d.Yesterday)
	})

	t.Run("Stale History", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetReadings", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			// another selection happens while the history is loading
			f.mgr.mu.Lock()
			f.mgr.generation++
			f.mgr.mu.Unlock()
		}).Return([]types.Reading{reading(testNow.Add(-time.Hour), 100, 1, 10)}, nil)

		_, err := f.mgr.Switch(ctx, "a")
		assert.ErrorIs(t, err, ErrStale)
		d, err := f.mgr.Dashboard()
		require.NoError(t, err)
		assert.Empty(t, d.Series)
		assert.Zero(t, d.CumulativeKWh)
	})

	t.Run("Poll During History Load", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("AppendReading", mock.Anything, mock.Anything).Return(nil)
		var pollErr error
		f.db.On("GetReadings", mock.Anything, "a", mock.Anything, mock.Anything, storage.MaxReadings).Run(func(args mock.Arguments) {
			_, gen, err := f.mgr.Active()
			require.NoError(t, err)
			_, pollErr = f.mgr.Accept(ctx, gen, types.PowerReading{DeviceID: "a", Watts: 500, IsOn: true, Timestamp: testNow.Add(10 * time.Second)})
		}).Return([]types.Reading{reading(testNow.Add(-time.Hour), 300, 0.25, 2)}, nil)
		f.db.On("GetReadings", mock.Anything, "a", mock.Anything, mock.Anything, 0).Return(nil, nil)

		_, err := f.mgr.Switch(ctx, "a")
		require.NoError(t, err)
		assert.ErrorIs(t, pollErr, ErrStale, "readings are refused until history is in place")

		_, gen, _ := f.mgr.Active()
		_, err = f.mgr.Accept(ctx, gen, types.PowerReading{DeviceID: "a", Watts: 500, IsOn: true, Timestamp: testNow.Add(20 * time.Second)})
		require.NoError(t, err)
		f.mgr.Wait()

		d, err := f.mgr.Dashboard()
		require.NoError(t, err)
		require.Len(t, d.Series, 2)
		for i := 1; i < len(d.Series); i++ {
			assert.True(t, d.Series[i].Timestamp.After(d.Series[i-1].Timestamp), "series out of order at %d", i)
		}
	})

	t.Run("History Timeout", func(t *testing.T) {
		f := newFixture(t)
		f.mgr.readTimeout = 10 * time.Millisecond
		f.db.On("GetReadings", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).Return(nil, context.DeadlineExceeded)

		_, err := f.mgr.Switch(ctx, "a")
		require.NoError(t, err, "a hung store leaves an empty session")

		_, gen, _ := f.mgr.Active()
		f.db.On("AppendReading", mock.Anything, mock.Anything).Return(nil)
		_, err = f.mgr.Accept(ctx, gen, types.PowerReading{DeviceID: "a", Watts: 10, IsOn: true, Timestamp: testNow.Add(time.Minute)})
		assert.NoError(t, err)
		f.mgr.Wait()
	})
}

func TestAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("Process", func(t *testing.T) {
		f := newFixture(t)
		f.emptyHistory()
		f.db.On("AppendReading", mock.Anything, mock.MatchedBy(func(r types.Reading) bool {
			return r.DeviceID == "a" && r.KWh == 1 && r.Cost == 10
		})).Return(nil).Once()

		_, err := f.mgr.Switch(ctx, "a")
		require.NoError(t, err)
		_, gen, err := f.mgr.Active()
		require.NoError(t, err)

		u, err := f.mgr.Accept(ctx, gen, types.PowerReading{DeviceID: "a", Watts: 1000, IsOn: true, Timestamp: testNow.Add(time.Hour)})
		require.NoError(t, err)
		f.mgr.Wait()

		assert.Equal(t, 10.0, u.Rate)
		assert.Equal(t, 1.0, u.Sample.KWh)
		assert.Equal(t, 10.0, u.Sample.Cost)
		assert.Equal(t, 1.0, u.Increment.Cumulative)
		assert.Equal(t, 80, u.Report.Score, "above the peak threshold")
		assert.Equal(t, "Good", u.Report.Label)
		assert.Equal(t, 10.0, u.Summary.HourlyCost)
		assert.Equal(t, 10.0, u.Report.Insights.TodayCost)
		f.db.AssertExpectations(t)

		d, err := f.mgr.Dashboard()
		require.NoError(t, err)
		require.NotNil(t, d.Latest)
		assert.Equal(t, 1000.0, d.Latest.Reading.Watts)
		assert.Equal(t, 1000.0, d.HourlyMeans[13])
		assert.Equal(t, []int{13}, peakHourNumbers(d))
	})

	t.Run("Stale Generation", func(t *testing.T) {
		f := newFixture(t)
		f.emptyHistory()
		_, err := f.mgr.Switch(ctx, "a")
		require.NoError(t, err)
		_, oldGen, _ := f.mgr.Active()
		_, err = f.mgr.Switch(ctx, "b")
		require.NoError(t, err)

		_, err = f.mgr.Accept(ctx, oldGen, types.PowerReading{DeviceID: "a", Watts: 100, Timestamp: testNow.Add(time.Minute)})
		assert.ErrorIs(t, err, ErrStale)

		_, gen, _ := f.mgr.Active()
		_, err = f.mgr.Accept(ctx, gen, types.PowerReading{DeviceID: "a", Watts: 100, Timestamp: testNow.Add(time.Minute)})
		assert.ErrorIs(t, err, ErrStale, "reading for another device")
		f.mgr.Wait()
		f.db.AssertNotCalled(t, "AppendReading", mock.Anything, mock.Anything)
	})

	t.Run("No Device", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Accept(ctx, 0, types.PowerReading{DeviceID: "a"})
		assert.ErrorIs(t, err, ErrNoDevice)
	})

	t.Run("Persist Retries", func(t *testing.T) {
		f := newFixture(t)
		f.emptyHistory()
		f.db.On("AppendReading", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
		f.db.On("AppendReading", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := f.mgr.Switch(ctx, "a")
		require.NoError(t, err)
		_, gen, _ := f.mgr.Active()
		_, err = f.mgr.Accept(ctx, gen, types.PowerReading{DeviceID: "a", Watts: 5, IsOn: true, Timestamp: testNow.Add(time.Minute)})
		require.NoError(t, err)
		f.mgr.Wait()
		f.db.AssertNumberOfCalls(t, "AppendReading", 2)
	})

	t.Run("Persist Abandoned", func(t *testing.T) {
		f := newFixture(t)
		f.emptyHistory()
		f.db.On("AppendReading", mock.Anything, mock.Anything).Return(errors.New("unavailable"))

		_, err := f.mgr.Switch(ctx, "a")
		require.NoError(t, err)
		_, gen, _ := f.mgr.Active()
		u, err := f.mgr.Accept(ctx, gen, types.PowerReading{DeviceID: "a", Watts: 5, IsOn: true, Timestamp: testNow.Add(time.Minute)})
		require.NoError(t, err, "persistence never fails the sample")
		f.mgr.Wait()
		f.db.AssertNumberOfCalls(t, "AppendReading", 2)

		d, err := f.mgr.Dashboard()
		require.NoError(t, err)
		assert.Equal(t, u.Increment.Cumulative, d.CumulativeKWh)
	})
}

func peakHourNumbers(d Dashboard) []int {
	out := []int{}
	for _, p := range d.PeakHours {
		out = append(out, p.Hour)
	}
	return out
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.emptyHistory()
	f.db.On("AppendReading", mock.Anything, mock.Anything).Return(nil)
	f.plug.On("Toggle", mock.Anything, "a").Return(false, nil).Once()
	f.plug.On("Toggle", mock.Anything, "b").Return(true, nil).Once()

	_, err := f.mgr.Switch(ctx, "a")
	require.NoError(t, err)
	_, gen, _ := f.mgr.Active()
	_, err = f.mgr.Accept(ctx, gen, types.PowerReading{DeviceID: "a", Watts: 1000, IsOn: true, Timestamp: testNow.Add(time.Hour)})
	require.NoError(t, err)
	f.mgr.Wait()

	on, err := f.mgr.Toggle(ctx, "")
	require.NoError(t, err)
	assert.False(t, on)

	d, err := f.mgr.Dashboard()
	require.NoError(t, err)
	assert.False(t, d.IsOn)
	assert.Zero(t, d.CumulativeKWh)
	assert.Empty(t, d.Series)
	assert.Equal(t, 1, d.Today.ReadingCount, "day totals survive the reset")

	on, err = f.mgr.Toggle(ctx, "b")
	require.NoError(t, err)
	assert.True(t, on)
	d, _ = f.mgr.Dashboard()
	assert.False(t, d.IsOn, "toggling another device leaves the session alone")

	_, err = f.mgr.Toggle(ctx, "zzz")
	assert.ErrorIs(t, err, plug.ErrNotFound)
}

func TestPoller(t *testing.T) {
	t.Run("Poll", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		f.emptyHistory()
		f.db.On("AppendReading", mock.Anything, mock.Anything).Return(nil)
		f.plug.On("ReadPower", mock.Anything, "a").Return(types.PowerReading{DeviceID: "a", Watts: 0, IsOn: true, Timestamp: testNow.Add(time.Minute)}, nil).Once()
		f.plug.On("ReadPower", mock.Anything, "a").Return(types.PowerReading{}, errors.New("timeout")).Once()

		p := NewPoller(f.mgr, nil, time.Hour)
		_, err := p.Poll(ctx)
		assert.ErrorIs(t, err, ErrNoDevice)

		_, err = f.mgr.Switch(ctx, "a")
		require.NoError(t, err)

		u, err := p.Poll(ctx)
		require.NoError(t, err)
		assert.Zero(t, u.Sample.Watts, "zero watts is a valid sample")

		_, err = p.Poll(ctx)
		assert.Error(t, err)
		f.mgr.Wait()
	})

	t.Run("Run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newFixture(t)
		f.emptyHistory()
		f.db.On("AppendReading", mock.Anything, mock.Anything).Return(nil)
		f.plug.On("ReadPower", mock.Anything, "a").Run(func(mock.Arguments) {
			cancel()
		}).Return(types.PowerReading{DeviceID: "a", Watts: 60, IsOn: true, Timestamp: testNow.Add(time.Minute)}, nil)

		_, err := f.mgr.Switch(context.Background(), "a")
		require.NoError(t, err)

		require.NoError(t, NewPoller(f.mgr, nil, time.Hour).Run(ctx))
		f.db.AssertNumberOfCalls(t, "AppendReading", 1)
	})

	t.Run("Invalid Interval", func(t *testing.T) {
		f := newFixture(t)
		assert.Error(t, NewPoller(f.mgr, nil, 0).Run(context.Background()))
	})
}
