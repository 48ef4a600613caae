// Package store persists application state in a single SQLite database:
// the user's settings, the manual water log, and a generic cache-slot table
// holding the observed-precipitation cache and the weekly weather record.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"lawncast/internal/types"
)

// weatherRecordSlot is the cache-slot key holding the weekly weather record.
const weatherRecordSlot = "weatherRecord_v1"

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	zip TEXT NOT NULL DEFAULT '',
	lat REAL NOT NULL DEFAULT 0,
	lon REAL NOT NULL DEFAULT 0,
	zone TEXT NOT NULL DEFAULT '',
	sun_exposure TEXT NOT NULL DEFAULT '',
	sprinkler_rate_in_per_hr REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS water_log (
	date TEXT PRIMARY KEY,
	minutes INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_slots (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store wraps the SQLite handle. Safe for concurrent use; SQLite serializes
// writers internally and every write here is a single-statement full replace.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// modernc sqlite is a single-connection driver in practice; cap the pool
	// so writes never contend on the file lock.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Settings returns the persisted settings, with found=false before
// onboarding has written any.
func (s *Store) Settings(ctx context.Context) (types.Settings, bool, error) {
	var out types.Settings
	var zone, sun string
	row := s.db.QueryRowContext(ctx,
		`SELECT zip, lat, lon, zone, sun_exposure, sprinkler_rate_in_per_hr FROM settings WHERE id = 1`)
	err := row.Scan(&out.Zip, &out.Lat, &out.Lon, &zone, &sun, &out.SprinklerRateInPerHr)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Settings{}, false, nil
	}
	if err != nil {
		return types.Settings{}, false, types.NewAppError(types.ErrCodeInternalStore, "reading settings", err)
	}
	out.Zone = types.ClimateZone(zone)
	out.SunExposure = types.SunExposure(sun)
	return out, true, nil
}

// SetSettings validates and persists the settings as the single row.
func (s *Store) SetSettings(ctx context.Context, settings types.Settings) error {
	if err := validateSettings(settings); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, zip, lat, lon, zone, sun_exposure, sprinkler_rate_in_per_hr)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			zip = excluded.zip,
			lat = excluded.lat,
			lon = excluded.lon,
			zone = excluded.zone,
			sun_exposure = excluded.sun_exposure,
			sprinkler_rate_in_per_hr = excluded.sprinkler_rate_in_per_hr`,
		settings.Zip, settings.Lat, settings.Lon,
		string(settings.Zone), string(settings.SunExposure), settings.SprinklerRateInPerHr)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "writing settings", err)
	}
	return nil
}

func validateSettings(settings types.Settings) error {
	if settings.Lat < -90 || settings.Lat > 90 {
		return types.NewAppError(types.ErrCodeValidationInvalidLat,
			fmt.Sprintf("latitude %g out of range", settings.Lat), nil)
	}
	if settings.Lon < -180 || settings.Lon > 180 {
		return types.NewAppError(types.ErrCodeValidationInvalidLon,
			fmt.Sprintf("longitude %g out of range", settings.Lon), nil)
	}
	if !settings.Zone.Valid() {
		return types.NewAppError(types.ErrCodeValidationInvalidZone,
			fmt.Sprintf("unknown climate zone %q", settings.Zone), nil)
	}
	if !settings.SunExposure.Valid() {
		return types.NewAppError(types.ErrCodeValidationInvalidSun,
			fmt.Sprintf("unknown sun exposure %q", settings.SunExposure), nil)
	}
	return nil
}

// WaterLogEntry returns the entry for date, with found=false when absent.
func (s *Store) WaterLogEntry(ctx context.Context, date string) (types.WaterLogEntry, bool, error) {
	var entry types.WaterLogEntry
	row := s.db.QueryRowContext(ctx, `SELECT date, minutes FROM water_log WHERE date = ?`, date)
	err := row.Scan(&entry.Date, &entry.Minutes)
	if errors.Is(err, sql.ErrNoRows) {
		return types.WaterLogEntry{}, false, nil
	}
	if err != nil {
		return types.WaterLogEntry{}, false, types.NewAppError(types.ErrCodeInternalStore, "reading water log entry", err)
	}
	return entry, true, nil
}

// WaterLogRange returns entries with start <= date <= end, ordered by date.
func (s *Store) WaterLogRange(ctx context.Context, start, end string) ([]types.WaterLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, minutes FROM water_log WHERE date >= ? AND date <= ? ORDER BY date`, start, end)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "querying water log", err)
	}
	defer rows.Close()

	var entries []types.WaterLogEntry
	for rows.Next() {
		var e types.WaterLogEntry
		if err := rows.Scan(&e.Date, &e.Minutes); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStore, "scanning water log row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "iterating water log rows", err)
	}
	return entries, nil
}

// SetWaterLogEntry validates and upserts a single day's watering minutes.
func (s *Store) SetWaterLogEntry(ctx context.Context, entry types.WaterLogEntry) error {
	if _, err := time.Parse(types.DateLayout, entry.Date); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidDate,
			fmt.Sprintf("invalid date %q", entry.Date), err)
	}
	if entry.Minutes < 0 || entry.Minutes > types.MaxLogMinutes {
		return types.NewAppError(types.ErrCodeValidationMinutesRange,
			fmt.Sprintf("minutes %d outside [0, %d]", entry.Minutes, types.MaxLogMinutes), nil)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO water_log (date, minutes) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET minutes = excluded.minutes`,
		entry.Date, entry.Minutes)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "writing water log entry", err)
	}
	return nil
}

// DeleteWaterLogEntry removes the entry for date.
// Returns not_found_log_entry when no row existed.
func (s *Store) DeleteWaterLogEntry(ctx context.Context, date string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM water_log WHERE date = ?`, date)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "deleting water log entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "deleting water log entry", err)
	}
	if n == 0 {
		return types.NewAppError(types.ErrCodeNotFoundLogEntry,
			fmt.Sprintf("no water log entry for %s", date), nil)
	}
	return nil
}

// GetSlot returns the raw cache value for key, with found=false when absent.
// Implements the reconciler's SlotStore.
func (s *Store) GetSlot(ctx context.Context, key string) (string, bool, error) {
	var value string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM cache_slots WHERE key = ?`, key)
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, types.NewAppError(types.ErrCodeInternalStore, "reading cache slot", err)
	}
	return value, true, nil
}

// SetSlot replaces the value for key.
func (s *Store) SetSlot(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_slots (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "writing cache slot", err)
	}
	return nil
}

// WeatherRecord returns the persisted weekly weather record, or nil when
// absent. A record that fails to decode is treated as absent.
func (s *Store) WeatherRecord(ctx context.Context) (*types.WeatherRecord, error) {
	raw, found, err := s.GetSlot(ctx, weatherRecordSlot)
	if err != nil || !found {
		return nil, err
	}
	var rec types.WeatherRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.WarnContext(ctx, "discarding corrupted weather record", "error", err)
		return nil, nil
	}
	return &rec, nil
}

// SetWeatherRecord replaces the persisted weekly weather record in full.
func (s *Store) SetWeatherRecord(ctx context.Context, rec *types.WeatherRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "encoding weather record", err)
	}
	return s.SetSlot(ctx, weatherRecordSlot, string(raw))
}

// Reset clears settings, the water log, and every cache slot in one
// transaction.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "beginning reset transaction", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM settings`,
		`DELETE FROM water_log`,
		`DELETE FROM cache_slots`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalStore, "clearing table during reset", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "committing reset", err)
	}
	return nil
}
