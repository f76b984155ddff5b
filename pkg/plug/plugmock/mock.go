package plugmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/plugmeter/plugmeter/pkg/plug"
	"github.com/plugmeter/plugmeter/pkg/types"
)

type MockPlug struct {
	mock.Mock
}

var _ plug.Plug = (*MockPlug)(nil)

func (m *MockPlug) ReadPower(ctx context.Context, deviceID string) (types.PowerReading, error) {
	args := m.Called(ctx, deviceID)
	if len(args) > 0 {
		return args.Get(0).(types.PowerReading), args.Error(1)
	}
	return types.PowerReading{DeviceID: deviceID}, nil
}

func (m *MockPlug) Toggle(ctx context.Context, deviceID string) (bool, error) {
	args := m.Called(ctx, deviceID)
	return args.Bool(0), args.Error(1)
}
