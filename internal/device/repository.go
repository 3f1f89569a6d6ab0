package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/bluerial/internal/presence"
)

// timeFormat keeps stored timestamps fixed-width so they sort as text.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Repository defines the interface for known-device persistence.
// This abstraction enables unit testing of the Registry without a database.
type Repository interface {
	// GetByAddress retrieves an entry by radio address.
	// Returns ErrDeviceNotFound if there is none.
	GetByAddress(ctx context.Context, address uint64) (KnownDevice, error)

	// List retrieves all entries ordered by stable id.
	List(ctx context.Context) ([]KnownDevice, error)

	// Create inserts a new entry and sets its timestamps.
	// Returns ErrDeviceExists if the address or stable id is taken.
	Create(ctx context.Context, d *KnownDevice) error

	// Update modifies an existing entry and refreshes UpdatedAt.
	// Returns ErrDeviceNotFound if the address is not registered.
	Update(ctx context.Context, d *KnownDevice) error

	// Delete removes an entry by address.
	// Returns ErrDeviceNotFound if the address is not registered.
	Delete(ctx context.Context, address uint64) error
}

// SQLiteRepository implements Repository over the ble_known_devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const knownDeviceColumns = `address, stable_id, name, connected, pairable, paired, created_at, updated_at`

// GetByAddress retrieves an entry by radio address.
func (r *SQLiteRepository) GetByAddress(ctx context.Context, address uint64) (KnownDevice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+knownDeviceColumns+` FROM ble_known_devices WHERE address = ?`,
		presence.FormatAddress(address),
	)
	d, err := scanKnownDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return KnownDevice{}, ErrDeviceNotFound
		}
		return KnownDevice{}, fmt.Errorf("querying known device: %w", err)
	}
	return d, nil
}

// List retrieves all entries ordered by stable id.
func (r *SQLiteRepository) List(ctx context.Context) ([]KnownDevice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+knownDeviceColumns+` FROM ble_known_devices ORDER BY stable_id`)
	if err != nil {
		return nil, fmt.Errorf("querying known devices: %w", err)
	}
	defer rows.Close()

	var devices []KnownDevice
	for rows.Next() {
		d, err := scanKnownDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning known device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating known devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new entry.
func (r *SQLiteRepository) Create(ctx context.Context, d *KnownDevice) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ble_known_devices (`+knownDeviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		presence.FormatAddress(d.Address),
		d.StableID,
		d.Name,
		boolToInt(d.Connection.Connected),
		boolToInt(d.Connection.Pairable),
		boolToInt(d.Connection.Paired),
		d.CreatedAt.UTC().Format(timeFormat),
		d.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting known device: %w", err)
	}
	return nil
}

// Update modifies an existing entry.
func (r *SQLiteRepository) Update(ctx context.Context, d *KnownDevice) error {
	d.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE ble_known_devices
		 SET stable_id = ?, name = ?, connected = ?, pairable = ?, paired = ?, updated_at = ?
		 WHERE address = ?`,
		d.StableID,
		d.Name,
		boolToInt(d.Connection.Connected),
		boolToInt(d.Connection.Pairable),
		boolToInt(d.Connection.Paired),
		d.UpdatedAt.Format(timeFormat),
		presence.FormatAddress(d.Address),
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("updating known device: %w", err)
	}
	return expectOneRow(result)
}

// Delete removes an entry by address.
func (r *SQLiteRepository) Delete(ctx context.Context, address uint64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM ble_known_devices WHERE address = ?`,
		presence.FormatAddress(address),
	)
	if err != nil {
		return fmt.Errorf("deleting known device: %w", err)
	}
	return expectOneRow(result)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanKnownDevice(s scanner) (KnownDevice, error) {
	var (
		d                           KnownDevice
		address                     string
		connected, pairable, paired int
		createdAt, updatedAt        string
	)
	if err := s.Scan(&address, &d.StableID, &d.Name, &connected, &pairable, &paired, &createdAt, &updatedAt); err != nil {
		return KnownDevice{}, err
	}

	addr, err := presence.ParseAddress(address)
	if err != nil {
		return KnownDevice{}, fmt.Errorf("stored address: %w", err)
	}
	d.Address = addr
	d.Connection = presence.ConnectionState{
		Connected: connected != 0,
		Pairable:  pairable != 0,
		Paired:    paired != 0,
	}
	if d.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return KnownDevice{}, err
	}
	if d.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return KnownDevice{}, err
	}
	return d, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// isConstraintError reports a primary key or UNIQUE violation.
func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
