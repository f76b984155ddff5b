package types

import (
	"time"
)

// Sample is one polled measurement with the energy and cost it added since
// the previous sample. Cost is captured at the rate in effect when the
// sample was taken and is never recomputed.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Watts     float64   `json:"watts"`
	KWh       float64   `json:"kWh"`
	Cost      float64   `json:"cost"`
}

// Reading is a Sample as persisted remotely.
type Reading struct {
	ID       string `json:"id,omitempty"`
	DeviceID string `json:"deviceId"`
	Sample
}

// PowerReading is what the device cloud reports for a plug.
type PowerReading struct {
	DeviceID  string    `json:"deviceId"`
	Watts     float64   `json:"watts"`
	IsOn      bool      `json:"isOn"`
	Timestamp time.Time `json:"timestamp"`

	// RawPowerValue is the value as reported, before unit normalisation.
	RawPowerValue float64 `json:"rawPowerValue,omitempty"`
	PowerCode     string  `json:"powerPropertyCode,omitempty"`
	SwitchCode    string  `json:"switchPropertyCode,omitempty"`
}

// Device describes a plug the dashboard can select.
type Device struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Location string `json:"location" yaml:"location"`
	Type     string `json:"type" yaml:"type"`
}
