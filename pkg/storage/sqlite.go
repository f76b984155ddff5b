package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	_ "github.com/mattn/go-sqlite3"
	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/types"
)

// SQLiteProvider implements the Database interface on a local SQLite file.
type SQLiteProvider struct {
	path string
	conn *sql.DB
}

// configuredSQLite sets up the SQLite provider.
// It registers flags for configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "plugmeter.db", "SQLite database file path")

	s := &SQLiteProvider{}
	lflag.Do(func() {
		s.path = *path
	})
	return s
}

// NewSQLite returns an unopened provider for path.
func NewSQLite(path string) *SQLiteProvider {
	return &SQLiteProvider{path: path}
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return errors.New("sqlite-path cannot be empty")
	}
	return nil
}

// Init opens or creates the database and applies the schema.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	conn, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.conn = conn
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// OpenReadOnly opens an existing database for inspection without applying
// the schema.
func (s *SQLiteProvider) OpenReadOnly() error {
	conn, err := sql.Open("sqlite3", "file:"+s.path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.conn = conn
	return nil
}

// Close closes the database connection.
func (s *SQLiteProvider) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// migrate creates the database schema
func (s *SQLiteProvider) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		watts REAL NOT NULL,
		kwh REAL NOT NULL,
		cost REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings(device_id, ts);

	CREATE TABLE IF NOT EXISTS device_settings (
		device_id TEXT PRIMARY KEY,
		json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.conn.ExecContext(ctx, schema)
	return err
}

// GetDeviceSettings returns the stored settings and their version, or zero
// values when the device has none.
func (s *SQLiteProvider) GetDeviceSettings(ctx context.Context, deviceID string) (types.DeviceSettings, int, error) {
	if deviceID == "" {
		return types.DeviceSettings{}, 0, ErrInvalidDevice
	}
	var (
		jsonStr string
		version int
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT json, version FROM device_settings WHERE device_id = ?`, deviceID,
	).Scan(&jsonStr, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DeviceSettings{}, 0, nil
	}
	if err != nil {
		return types.DeviceSettings{}, 0, fmt.Errorf("failed to fetch settings: %w", err)
	}

	var settings types.DeviceSettings
	if err := json.Unmarshal([]byte(jsonStr), &settings); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal settings json", slog.String("deviceID", deviceID), slog.Any("err", err))
		return types.DeviceSettings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return settings, version, nil
}

// SetDeviceSettings upserts the settings row for the device.
func (s *SQLiteProvider) SetDeviceSettings(ctx context.Context, deviceID string, settings types.DeviceSettings, version int) error {
	if deviceID == "" {
		return ErrInvalidDevice
	}
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO device_settings (device_id, json, version, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id) DO UPDATE SET
			json = excluded.json,
			version = excluded.version,
			updated_at = CURRENT_TIMESTAMP
	`, deviceID, string(jsonBytes), version)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// AppendReading stores a single reading.
func (s *SQLiteProvider) AppendReading(ctx context.Context, reading types.Reading) error {
	return s.AppendReadings(ctx, []types.Reading{reading})
}

// AppendReadings stores readings in a single transaction.
func (s *SQLiteProvider) AppendReadings(ctx context.Context, readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	readings, err := prepareReadings(readings, time.Now())
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (id, device_id, ts, watts, kwh, cost)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.ID, r.DeviceID, r.Timestamp.UnixNano(), r.Watts, r.KWh, r.Cost); err != nil {
			return fmt.Errorf("failed to append reading: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit readings: %w", err)
	}
	return nil
}

// GetReadings retrieves readings in [start, end) newest first.
func (s *SQLiteProvider) GetReadings(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]types.Reading, error) {
	if deviceID == "" {
		return nil, ErrInvalidDevice
	}
	query := `
		SELECT id, ts, watts, kwh, cost FROM readings
		WHERE device_id = ? AND ts >= ? AND ts < ?
		ORDER BY ts DESC
	`
	args := []any{deviceID, start.UnixNano(), end.UnixNano()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []types.Reading
	for rows.Next() {
		r := types.Reading{DeviceID: deviceID}
		var ts int64
		if err := rows.Scan(&r.ID, &ts, &r.Watts, &r.KWh, &r.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return readings, nil
}

// CountReadings returns how many readings each device has stored.
func (s *SQLiteProvider) CountReadings(ctx context.Context) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT device_id, COUNT(*) FROM readings GROUP BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			deviceID string
			n        int
		)
		if err := rows.Scan(&deviceID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[deviceID] = n
	}
	return counts, rows.Err()
}
