// Package plug talks to smart plugs through their vendor cloud.
package plug

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/levenlabs/go-lflag"

	"github.com/plugmeter/plugmeter/pkg/types"
)

var (
	// ErrNotFound is returned for devices that are not in the catalog.
	ErrNotFound = errors.New("device not found")
	// ErrNoSwitch is returned when a device reports no switch property.
	ErrNoSwitch = errors.New("no toggleable switch property found on this device")
)

// Plug defines the interface for reading and switching a smart plug.
type Plug interface {
	// ReadPower returns the instantaneous power and switch state. Zero watts is
	// a valid reading.
	ReadPower(ctx context.Context, deviceID string) (types.PowerReading, error)

	// Toggle inverts the switch state and returns the new state.
	Toggle(ctx context.Context, deviceID string) (bool, error)
}

// Power property codes in order of preference.
var powerCodes = []string{
	"cur_power",
	"power",
	"pwr",
	"electric_power",
	"active_power",
	"power_consumption",
}

// Switch property codes in order of preference.
var switchCodes = []string{
	"switch_1",
	"switch",
	"switch_led",
	"power_switch",
}

// NormalizeWatts converts a raw power value into watts. Plugs report either
// milliwatts, centiwatts or watts depending on the model, distinguished by
// magnitude only. The result is rounded to 0.1 W.
func NormalizeWatts(raw float64) float64 {
	var w float64
	switch {
	case raw > 10000:
		w = raw / 1000
	case raw > 1000:
		w = raw / 10
	default:
		w = raw
	}
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	return math.Round(w*10) / 10
}

// Configured sets up the plug provider and device catalog.
func Configured() *Map {
	provider := lflag.String("plug-provider", "tuya", "Smart plug provider (tuya, simulated)")
	tuya := configuredTuya()
	catalog := configuredCatalog()

	m := NewMap(nil, nil)
	lflag.Do(func() {
		m.catalog = catalog
		switch *provider {
		case "tuya":
			if err := tuya.Validate(); err != nil {
				panic(fmt.Sprintf("tuya validation failed: %v", err))
			}
			m.plug = tuya
		case "simulated":
			m.plug = NewSimulated(catalog.IDs()...)
		default:
			panic(fmt.Sprintf("unknown plug provider: %s", *provider))
		}
	})
	return m
}

// Map routes requests for catalog devices to the configured provider.
type Map struct {
	mu      sync.Mutex
	plug    Plug
	catalog *Catalog
}

// NewMap creates a Map over the given provider and catalog.
func NewMap(p Plug, c *Catalog) *Map {
	if c == nil {
		c = &Catalog{}
	}
	return &Map{plug: p, catalog: c}
}

// Devices returns the catalog.
func (m *Map) Devices() []types.Device {
	return m.catalog.Devices()
}

// Device returns a single catalog entry. An empty id selects the first device.
func (m *Map) Device(deviceID string) (types.Device, error) {
	if deviceID == "" {
		return m.catalog.Default()
	}
	return m.catalog.Lookup(deviceID)
}

// ReadPower reads a catalog device.
func (m *Map) ReadPower(ctx context.Context, deviceID string) (types.PowerReading, error) {
	if _, err := m.catalog.Lookup(deviceID); err != nil {
		return types.PowerReading{}, err
	}
	return m.provider().ReadPower(ctx, deviceID)
}

// Toggle switches a catalog device.
func (m *Map) Toggle(ctx context.Context, deviceID string) (bool, error) {
	if _, err := m.catalog.Lookup(deviceID); err != nil {
		return false, err
	}
	return m.provider().Toggle(ctx, deviceID)
}

// SetPlug replaces the provider. This is primarily used for testing.
func (m *Map) SetPlug(p Plug) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plug = p
}

func (m *Map) provider() Plug {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plug
}

var _ Plug = (*Map)(nil)
