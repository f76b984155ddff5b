package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud Firestore.
// Each device has its own document under "devices" holding a readings
// sub-collection and a config/settings document.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project id is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) getCollection(deviceID, name string) (*firestore.CollectionRef, error) {
	if deviceID == "" {
		return nil, ErrInvalidDevice
	}
	return f.client.Collection("devices").Doc(deviceID).Collection(name), nil
}

// GetDeviceSettings retrieves the device configuration from the "config/settings" document.
func (f *FirestoreProvider) GetDeviceSettings(ctx context.Context, deviceID string) (types.DeviceSettings, int, error) {
	coll, err := f.getCollection(deviceID, "config")
	if err != nil {
		return types.DeviceSettings{}, 0, err
	}
	doc, err := coll.Doc("settings").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// version 0 tells the caller to apply defaults
			return types.DeviceSettings{}, 0, nil
		}
		return types.DeviceSettings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "settings doc missing json", slog.String("deviceID", deviceID))
		return types.DeviceSettings{}, 0, fmt.Errorf("settings document missing 'json' field: %w", err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "settings doc json not string", slog.String("deviceID", deviceID))
		return types.DeviceSettings{}, 0, fmt.Errorf("settings 'json' field is not a string")
	}

	var s types.DeviceSettings
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal settings json", slog.String("deviceID", deviceID), slog.Any("err", err))
		return types.DeviceSettings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return s, version, nil
}

// SetDeviceSettings saves the device configuration to the "config/settings" document.
func (f *FirestoreProvider) SetDeviceSettings(ctx context.Context, deviceID string, settings types.DeviceSettings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	coll, err := f.getCollection(deviceID, "config")
	if err != nil {
		return err
	}
	_, err = coll.Doc("settings").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// readingDocID orders readings by time while keeping ids unique when two
// readings share a timestamp.
func readingDocID(r types.Reading) string {
	return formatDocTime(r.Timestamp) + "_" + r.ID
}

// AppendReading stores a single reading in the device's "readings" collection.
func (f *FirestoreProvider) AppendReading(ctx context.Context, reading types.Reading) error {
	return f.AppendReadings(ctx, []types.Reading{reading})
}

// AppendReadings stores readings as JSON blobs keyed by timestamp. Batches
// are written with a BulkWriter and the first failure is returned.
func (f *FirestoreProvider) AppendReadings(ctx context.Context, readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	readings, err := prepareReadings(readings, time.Now())
	if err != nil {
		return err
	}

	if len(readings) == 1 {
		return f.setReading(ctx, readings[0])
	}

	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(readings))
	for _, r := range readings {
		coll, err := f.getCollection(r.DeviceID, "readings")
		if err != nil {
			bw.End()
			return err
		}
		data, err := readingData(r)
		if err != nil {
			bw.End()
			return err
		}
		job, err := bw.Set(coll.Doc(readingDocID(r)), data)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue reading: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to append reading: %w", err)
		}
	}
	return nil
}

func (f *FirestoreProvider) setReading(ctx context.Context, r types.Reading) error {
	coll, err := f.getCollection(r.DeviceID, "readings")
	if err != nil {
		return err
	}
	data, err := readingData(r)
	if err != nil {
		return err
	}
	if _, err := coll.Doc(readingDocID(r)).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}
	return nil
}

func readingData(r types.Reading) (map[string]interface{}, error) {
	jsonBytes, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reading: %w", err)
	}
	return map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": r.Timestamp,
	}, nil
}

// GetReadings retrieves readings within the specified time range, newest first.
// Uses document ID range queries for efficient filtering.
func (f *FirestoreProvider) GetReadings(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]types.Reading, error) {
	coll, err := f.getCollection(deviceID, "readings")
	if err != nil {
		return nil, err
	}
	q := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(formatDocTime(start))).
		Where(firestore.DocumentID, "<", coll.Doc(formatDocTime(end))).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var readings []types.Reading
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating readings: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "reading doc missing json", slog.String("docID", doc.Ref.ID), slog.String("deviceID", deviceID))
			continue
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "reading doc json not string", slog.String("docID", doc.Ref.ID), slog.String("deviceID", deviceID))
			continue
		}

		var r types.Reading
		if err := json.Unmarshal([]byte(jsonStr), &r); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal reading", slog.String("docID", doc.Ref.ID), slog.String("deviceID", deviceID), slog.Any("err", err))
			continue
		}
		readings = append(readings, r)
	}
	return readings, nil
}
