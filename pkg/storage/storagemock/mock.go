package storagemock

import (
	"context"
	"time"

	"github.com/plugmeter/plugmeter/pkg/storage"
	"github.com/plugmeter/plugmeter/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetDeviceSettings(ctx context.Context, deviceID string) (types.DeviceSettings, int, error) {
	args := m.Called(ctx, deviceID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.DeviceSettings), args.Int(1), args.Error(2)
	}
	return types.DeviceSettings{}, 0, nil
}

func (m *MockDatabase) SetDeviceSettings(ctx context.Context, deviceID string, settings types.DeviceSettings, version int) error {
	args := m.Called(ctx, deviceID, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) AppendReading(ctx context.Context, reading types.Reading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

func (m *MockDatabase) AppendReadings(ctx context.Context, readings []types.Reading) error {
	args := m.Called(ctx, readings)
	return args.Error(0)
}

func (m *MockDatabase) GetReadings(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]types.Reading, error) {
	args := m.Called(ctx, deviceID, start, end, limit)
	if len(args) > 0 {
		if r := args.Get(0); r != nil {
			return r.([]types.Reading), args.Error(1)
		}
		return nil, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	if len(args) > 0 {
		return args.Error(0)
	}
	return nil
}
