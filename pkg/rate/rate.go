// Package rate keeps the electricity price of each device.
package rate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/storage"
	"github.com/plugmeter/plugmeter/pkg/types"
)

// ErrInvalidRate is returned for negative or non-finite rates.
var ErrInvalidRate = errors.New("rate must be a finite non-negative number")

// Store reads and writes per-device rates.
type Store struct {
	db          storage.Database
	defaultRate float64
}

// Configured registers the default-rate flag.
func Configured(db storage.Database) *Store {
	defaultRate := types.DefaultRatePerKWh
	lflag.JSON(&defaultRate, "default-rate", defaultRate, "rate per kWh used for devices without a stored rate")

	s := New(db, types.DefaultRatePerKWh)
	lflag.Do(func() {
		s.defaultRate = defaultRate
	})
	return s
}

// New returns a Store backed by db.
func New(db storage.Database, defaultRate float64) *Store {
	return &Store{db: db, defaultRate: defaultRate}
}

// Default returns the rate used when nothing is stored.
func (s *Store) Default() float64 {
	return s.defaultRate
}

// Get returns the device rate. Storage failures fall back to the default rate
// so that sampling can continue.
func (s *Store) Get(ctx context.Context, deviceID string) (float64, error) {
	settings, err := s.Settings(ctx, deviceID)
	if errors.Is(err, storage.ErrInvalidDevice) {
		return 0, err
	}
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get device rate, using default", slog.String("deviceID", deviceID), slog.Any("error", err))
		return s.defaultRate, nil
	}
	return settings.RatePerKWh, nil
}

// Settings returns the device settings, migrating and saving them when they
// were written by an older version.
func (s *Store) Settings(ctx context.Context, deviceID string) (types.DeviceSettings, error) {
	if deviceID == "" {
		return types.DeviceSettings{}, storage.ErrInvalidDevice
	}
	settings, version, err := s.db.GetDeviceSettings(ctx, deviceID)
	if err != nil {
		return types.DeviceSettings{}, err
	}
	if version == 0 && settings.RatePerKWh == 0 {
		settings.RatePerKWh = s.defaultRate
	}

	if version < types.CurrentSettingsVersion {
		log.Ctx(ctx).InfoContext(ctx, "migrating settings", slog.Int("oldVersion", version), slog.Int("newVersion", types.CurrentSettingsVersion))
		migrated, changed, err := types.MigrateSettings(settings, version)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to migrate settings", slog.Int("currentVersion", version), slog.Any("error", err))
		} else if changed {
			settings = migrated
			if err := s.db.SetDeviceSettings(ctx, deviceID, migrated, types.CurrentSettingsVersion); err != nil {
				// the migrated settings are still returned so the request uses the new defaults
				log.Ctx(ctx).ErrorContext(ctx, "failed to save migrated settings", slog.Any("error", err))
			}
		}
	}
	return settings, nil
}

// Set validates and stores a device rate.
func (s *Store) Set(ctx context.Context, deviceID string, rate float64) (types.DeviceSettings, error) {
	if deviceID == "" {
		return types.DeviceSettings{}, storage.ErrInvalidDevice
	}
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return types.DeviceSettings{}, ErrInvalidRate
	}

	settings, err := s.Settings(ctx, deviceID)
	if err != nil {
		return types.DeviceSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	settings.RatePerKWh = rate
	settings.UpdatedAt = time.Now().UTC()
	if err := s.db.SetDeviceSettings(ctx, deviceID, settings, types.CurrentSettingsVersion); err != nil {
		return types.DeviceSettings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "updated device rate", slog.String("deviceID", deviceID), slog.Float64("rate", rate))
	return settings, nil
}
