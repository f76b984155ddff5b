package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/plugmeter/plugmeter/pkg/aggregate"
	"github.com/plugmeter/plugmeter/pkg/efficiency"
	"github.com/plugmeter/plugmeter/pkg/energy"
	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/metrics"
	"github.com/plugmeter/plugmeter/pkg/plug"
	"github.com/plugmeter/plugmeter/pkg/rate"
	"github.com/plugmeter/plugmeter/pkg/retry"
	"github.com/plugmeter/plugmeter/pkg/storage"
	"github.com/plugmeter/plugmeter/pkg/types"
)

// Devices is a plug provider that also knows the device catalog.
type Devices interface {
	plug.Plug
	Device(deviceID string) (types.Device, error)
}

// Manager owns the active session. Selecting another device replaces the
// session and bumps the generation so results requested for the previous
// device are discarded.
type Manager struct {
	plugs   Devices
	db      storage.Database
	rates   *rate.Store
	engine  *efficiency.Engine
	metrics *metrics.Metrics

	loc         *time.Location
	seriesSize  int
	policy      retry.Policy
	readTimeout time.Duration
	now         func() time.Time

	mu         sync.Mutex
	generation uint64
	active     *Session

	persisting sync.WaitGroup
}

// Configured registers the session flags.
func Configured(plugs Devices, db storage.Database, rates *rate.Store, engine *efficiency.Engine, m *metrics.Metrics) *Manager {
	tz := lflag.String("timezone", "Local", "IANA time zone used for hourly and daily buckets")
	seriesSize := energy.DefaultSeriesSize
	lflag.JSON(&seriesSize, "series-size", seriesSize, "number of samples kept for the live chart")

	mgr := NewManager(plugs, db, rates, engine, m)
	lflag.Do(func() {
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			panic(fmt.Sprintf("invalid timezone %q: %v", *tz, err))
		}
		mgr.loc = loc
		mgr.seriesSize = seriesSize
	})
	return mgr
}

// NewManager creates a Manager with no device selected.
func NewManager(plugs Devices, db storage.Database, rates *rate.Store, engine *efficiency.Engine, m *metrics.Metrics) *Manager {
	return &Manager{
		plugs:       plugs,
		db:          db,
		rates:       rates,
		engine:      engine,
		metrics:     m,
		loc:         time.Local,
		seriesSize:  energy.DefaultSeriesSize,
		policy:      retry.PersistPolicy,
		readTimeout: ReadTimeout,
		now:         time.Now,
	}
}

// SetLocation changes the zone used by sessions created afterwards. This is
// primarily used for testing.
func (m *Manager) SetLocation(loc *time.Location) {
	m.loc = loc
}

// Location returns the zone days and hours are evaluated in.
func (m *Manager) Location() *time.Location {
	return m.loc
}

// Active returns the selected device and the generation of its session.
func (m *Manager) Active() (types.Device, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return types.Device{}, 0, ErrNoDevice
	}
	return m.active.device, m.generation, nil
}

// Switch selects deviceID, or the first catalog device when empty, and
// restores today's and yesterday's figures from the store. A failed history
// load leaves the new session empty.
func (m *Manager) Switch(ctx context.Context, deviceID string) (types.Device, error) {
	device, err := m.plugs.Device(deviceID)
	if err != nil {
		return types.Device{}, err
	}
	ctx = log.WithDevice(ctx, device.ID)

	now := m.now()
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.active = newSession(device, gen, now, m.loc, m.seriesSize)
	m.active.loading = true
	m.mu.Unlock()
	log.Ctx(ctx).InfoContext(ctx, "switched device", slog.Uint64("generation", gen))

	recent, yesterday, loadErr := m.loadHistory(ctx, device.ID, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		log.Ctx(ctx).DebugContext(ctx, "discarding history for previous selection", slog.Uint64("generation", gen))
		return device, ErrStale
	}
	m.active.loading = false
	if loadErr != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to load history", slog.Any("error", loadErr))
		return device, nil
	}
	m.active.replay(recent, yesterday, now)
	return device, nil
}

// loadHistory returns the last 24 hours and the whole of yesterday, oldest
// first.
func (m *Manager) loadHistory(ctx context.Context, deviceID string, now time.Time) ([]types.Sample, []types.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, m.readTimeout)
	defer cancel()

	recent, err := m.db.GetReadings(ctx, deviceID, now.Add(-24*time.Hour), now, storage.MaxReadings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get recent readings: %w", err)
	}
	today := aggregate.DayOf(now, m.loc)
	yesterday, err := m.db.GetReadings(ctx, deviceID, today.AddDays(-1).Start(m.loc), today.Start(m.loc), 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get yesterday's readings: %w", err)
	}
	return storage.Samples(recent), storage.Samples(yesterday), nil
}

// Accept processes a reading requested under generation gen. Readings for a
// previous selection return ErrStale and change nothing.
func (m *Manager) Accept(ctx context.Context, gen uint64, r types.PowerReading) (Update, error) {
	ctx = log.WithDevice(ctx, r.DeviceID)
	rate, err := m.rates.Get(ctx, r.DeviceID)
	if err != nil {
		return Update{}, fmt.Errorf("failed to get rate: %w", err)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = m.now()
	}

	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return Update{}, ErrNoDevice
	}
	// readings taken while history loads would land before older samples
	if m.generation != gen || m.active.device.ID != r.DeviceID || m.active.loading {
		m.mu.Unlock()
		return Update{}, ErrStale
	}
	u := m.active.process(r, rate, m.engine)
	m.mu.Unlock()

	m.metrics.Sample(r.DeviceID, r.Watts, u.Increment.Energy)
	m.persist(ctx, types.Reading{DeviceID: r.DeviceID, Sample: u.Sample})
	return u, nil
}

// persist writes the reading in the background. Failures are retried per
// the persist policy and then dropped.
func (m *Manager) persist(ctx context.Context, r types.Reading) {
	ctx = context.WithoutCancel(ctx)
	m.persisting.Add(1)
	go func() {
		defer m.persisting.Done()
		err := retry.Do(ctx, m.policy, func(ctx context.Context) error {
			return m.db.AppendReading(ctx, r)
		})
		m.metrics.Persist(err)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "dropping reading", slog.Time("timestamp", r.Timestamp), slog.Any("error", err))
		}
	}()
}

// Wait blocks until every background write has finished.
func (m *Manager) Wait() {
	m.persisting.Wait()
}

// Toggle switches deviceID, or the active device when empty. Turning the
// active device off restarts its accumulator.
func (m *Manager) Toggle(ctx context.Context, deviceID string) (bool, error) {
	if deviceID == "" {
		device, _, err := m.Active()
		if err != nil {
			return false, err
		}
		deviceID = device.ID
	}
	ctx = log.WithDevice(ctx, deviceID)

	on, err := m.plugs.Toggle(ctx, deviceID)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.device.ID == deviceID {
		m.active.on = on
		if !on {
			m.active.acc.Reset(m.now())
			log.Ctx(ctx).InfoContext(ctx, "device turned off, accumulator reset")
		}
	}
	return on, nil
}

// Refresh rolls the active session's day over when midnight has passed.
func (m *Manager) Refresh(now time.Time) aggregate.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return aggregate.Initial
	}
	return m.active.agg.Refresh(now)
}

// Dashboard returns a snapshot of the active session.
func (m *Manager) Dashboard() (Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Dashboard{}, ErrNoDevice
	}
	return m.active.dashboard(m.now()), nil
}
