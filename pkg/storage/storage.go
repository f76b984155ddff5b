package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"github.com/plugmeter/plugmeter/pkg/types"
)

// MaxReadings caps how many raw readings a single query returns.
const MaxReadings = 1000

var (
	ErrInvalidDevice = errors.New("deviceID cannot be empty")
)

// Database defines the interface for persisting readings and device settings.
type Database interface {
	// Settings
	GetDeviceSettings(ctx context.Context, deviceID string) (types.DeviceSettings, int, error)
	SetDeviceSettings(ctx context.Context, deviceID string, settings types.DeviceSettings, version int) error

	// Readings
	// AppendReading stores one reading, a zero timestamp is replaced by now.
	AppendReading(ctx context.Context, reading types.Reading) error
	AppendReadings(ctx context.Context, readings []types.Reading) error
	// GetReadings returns readings in [start, end) newest first. A limit of 0
	// returns every reading in the range.
	GetReadings(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]types.Reading, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, sqlite)")

	var p struct{ Database }

	fs := configuredFirestore()
	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "sqlite":
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			p.Database = sq
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// prepareReadings validates readings and fills in ids and timestamps.
func prepareReadings(readings []types.Reading, now time.Time) ([]types.Reading, error) {
	out := make([]types.Reading, len(readings))
	for i, r := range readings {
		if r.DeviceID == "" {
			return nil, ErrInvalidDevice
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = now
		}
		if r.ID == "" {
			r.ID = newReadingID()
		}
		out[i] = r
	}
	return out, nil
}

func newReadingID() string {
	return uuid.NewString()
}

// docTimeLayout is fixed width so lexical order matches time order.
const docTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatDocTime(t time.Time) string {
	return t.UTC().Format(docTimeLayout)
}
