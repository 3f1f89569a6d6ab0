package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/bluerial/internal/presence"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SightingRepository stores and retrieves the presence history.
//
// Implementations must be thread-safe and use UTC timestamps.
type SightingRepository interface {
	// RecordSighting appends one entry. ID is assigned by the repository.
	RecordSighting(ctx context.Context, s *Sighting) error

	// History returns recent entries for a device key, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceKey: Presence key as rendered by DeviceKey.String
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	History(ctx context.Context, deviceKey string, limit int) ([]Sighting, error)
}

// SQLiteSightingRepository implements SightingRepository over ble_sightings.
type SQLiteSightingRepository struct {
	db *sql.DB
}

// NewSQLiteSightingRepository creates a new SQLite sighting repository.
func NewSQLiteSightingRepository(db *sql.DB) *SQLiteSightingRepository {
	return &SQLiteSightingRepository{db: db}
}

// RecordSighting inserts a sighting.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - s: Entry to persist; SeenAt defaults to now, ID is set on success
//
// Returns:
//   - error: ErrInvalidSighting, or the underlying database error
func (r *SQLiteSightingRepository) RecordSighting(ctx context.Context, s *Sighting) error {
	if s.DeviceKey == "" || s.Event == "" {
		return fmt.Errorf("%w: device key and event are required", ErrInvalidSighting)
	}
	if s.SeenAt.IsZero() {
		s.SeenAt = time.Now()
	}
	s.SeenAt = s.SeenAt.UTC()

	recordJSON, err := json.Marshal(s.Record)
	if err != nil {
		return fmt.Errorf("marshalling record: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO ble_sightings (device_key, address, event, record, seen_at) VALUES (?, ?, ?, ?, ?)`,
		s.DeviceKey,
		presence.FormatAddress(s.Record.Address),
		s.Event,
		string(recordJSON),
		s.SeenAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting sighting: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		s.ID = id
	}
	return nil
}

// History returns recent sightings for a device key, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceKey: Presence key
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Sighting: Entries ordered by seen_at DESC (may be empty)
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteSightingRepository) History(ctx context.Context, deviceKey string, limit int) ([]Sighting, error) {
	if deviceKey == "" {
		return nil, fmt.Errorf("%w: device key is required", ErrInvalidSighting)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_key, event, record, seen_at
		 FROM ble_sightings
		 WHERE device_key = ?
		 ORDER BY seen_at DESC, id DESC
		 LIMIT ?`,
		deviceKey,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sightings: %w", err)
	}
	defer rows.Close()

	entries := make([]Sighting, 0, limit)
	for rows.Next() {
		var (
			s          Sighting
			recordJSON string
			seenAt     string
		)
		if err := rows.Scan(&s.ID, &s.DeviceKey, &s.Event, &recordJSON, &seenAt); err != nil {
			return nil, fmt.Errorf("scanning sighting: %w", err)
		}
		if err := json.Unmarshal([]byte(recordJSON), &s.Record); err != nil {
			return nil, fmt.Errorf("unmarshalling record: %w", err)
		}
		if s.SeenAt, err = parseTimestamp(seenAt); err != nil {
			return nil, err
		}
		s.Record.Key = keyFor(s.DeviceKey, s.Record.Address)
		entries = append(entries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sightings: %w", err)
	}
	return entries, nil
}

// Prune deletes sightings older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteSightingRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM ble_sightings WHERE seen_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting sightings: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// keyFor rebuilds the presence key, which the JSON snapshot omits.
func keyFor(deviceKey string, address uint64) presence.DeviceKey {
	if deviceKey == presence.FormatAddress(address) {
		return presence.AddressKey(address)
	}
	return presence.StableKey(deviceKey)
}
