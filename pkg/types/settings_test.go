package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("v1: default rate", func(t *testing.T) {
		s, changed, err := MigrateSettings(DeviceSettings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, DefaultRatePerKWh, s.RatePerKWh)
		assert.Equal(t, "INR", s.Currency)
	})

	t.Run("v1: keeps stored rate", func(t *testing.T) {
		s, changed, err := MigrateSettings(DeviceSettings{RatePerKWh: 7.25}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 7.25, s.RatePerKWh)
	})

	t.Run("v2: zero rate survives once versioned", func(t *testing.T) {
		s, changed, err := MigrateSettings(DeviceSettings{RatePerKWh: 0}, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 0.0, s.RatePerKWh)
		assert.Equal(t, "INR", s.Currency)
	})

	t.Run("no change: current version", func(t *testing.T) {
		current := DeviceSettings{RatePerKWh: 12, Currency: "USD"}
		s, changed, err := MigrateSettings(current, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, current, s)
	})
}
