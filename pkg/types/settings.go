package types

import (
	"fmt"
	"time"
)

// CurrentSettingsVersion is the current version of the DeviceSettings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 2

// DefaultRatePerKWh is used for devices that never had a rate stored.
const DefaultRatePerKWh = 9.5

// DeviceSettings is the per-device configuration stored in the database.
type DeviceSettings struct {
	// RatePerKWh is the electricity price in currency units per kWh. It is
	// read at the time each sample is costed, so changing it only affects
	// samples taken afterwards.
	RatePerKWh float64 `json:"ratePerKWh"`

	// Currency is a display label only, costs are never converted.
	Currency string `json:"currency"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s DeviceSettings, currentVersion int) (DeviceSettings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial, a zero rate before versioning meant "unset"
			if s.RatePerKWh == 0 {
				s.RatePerKWh = DefaultRatePerKWh
				migrated = true
			}
		case 2:
			if s.Currency == "" {
				s.Currency = "INR"
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
