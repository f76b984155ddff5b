package plug

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/plugmeter/plugmeter/pkg/types"
)

// Simulated is an in-memory plug for development. Each device draws a base
// load derived from its id with a slow compressor-like cycle on top.
type Simulated struct {
	mu    sync.Mutex
	on    map[string]bool
	known map[string]bool
	now   func() time.Time
}

// NewSimulated creates a simulated plug for the given devices, all switched
// on. An empty id list accepts any device.
func NewSimulated(deviceIDs ...string) *Simulated {
	s := &Simulated{
		on:  make(map[string]bool),
		now: time.Now,
	}
	if len(deviceIDs) > 0 {
		s.known = make(map[string]bool)
		for _, id := range deviceIDs {
			s.known[id] = true
		}
	}
	return s
}

func (s *Simulated) isOn(deviceID string) bool {
	on, ok := s.on[deviceID]
	return !ok || on
}

func baseWatts(deviceID string) float64 {
	h := fnv.New32a()
	h.Write([]byte(deviceID))
	// somewhere between 40 W and 240 W
	return 40 + float64(h.Sum32()%200)
}

// SimulatedWatts is the load a simulated device draws at t. It follows a 30
// minute cycle between 20% and 100% of a base load derived from the id.
func SimulatedWatts(deviceID string, t time.Time) float64 {
	phase := float64(t.Unix()%1800) / 1800 * 2 * math.Pi
	w := baseWatts(deviceID) * (0.6 + 0.4*math.Sin(phase))
	return math.Round(w*10) / 10
}

// ReadPower returns the simulated load, zero when switched off.
func (s *Simulated) ReadPower(ctx context.Context, deviceID string) (types.PowerReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known != nil && !s.known[deviceID] {
		return types.PowerReading{}, ErrNotFound
	}

	now := s.now()
	r := types.PowerReading{
		DeviceID:   deviceID,
		IsOn:       s.isOn(deviceID),
		Timestamp:  now,
		PowerCode:  "cur_power",
		SwitchCode: "switch_1",
	}
	if r.IsOn {
		r.Watts = SimulatedWatts(deviceID, now)
		r.RawPowerValue = r.Watts
	}
	return r, nil
}

// Toggle flips the simulated switch.
func (s *Simulated) Toggle(ctx context.Context, deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known != nil && !s.known[deviceID] {
		return false, ErrNotFound
	}
	next := !s.isOn(deviceID)
	s.on[deviceID] = next
	return next, nil
}

var _ Plug = (*Simulated)(nil)
