package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines the persistence operations for notification sources.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
//
// Every method is a single statement or a single transaction, so concurrent
// readers never observe a partial mutation.
type Repository interface {
	// GetByAddress retrieves a device by address.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByAddress(ctx context.Context, address string) (*Device, error)

	// List retrieves all devices ordered by name, then address.
	List(ctx context.Context) ([]Device, error)

	// ListEnabled retrieves enabled devices ordered by name, then address.
	ListEnabled(ctx context.Context) ([]Device, error)

	// Insert adds a new device.
	// Returns ErrDeviceExists if the address is already stored.
	Insert(ctx context.Context, device *Device) error

	// Update replaces the name and enabled flag of an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// SetEnabled sets the enabled flag of a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	SetEnabled(ctx context.Context, address string, enabled bool) error

	// ToggleEnabled inverts the enabled flag in one statement and returns
	// the new value. Returns ErrDeviceNotFound if the device does not exist.
	ToggleEnabled(ctx context.Context, address string) (bool, error)

	// Delete removes a device by address.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, address string) error

	// EnsureWired inserts the wired source with the given name unless it
	// already exists. It reports whether a row was created.
	EnsureWired(ctx context.Context, name string) (bool, error)

	// Apply writes all changes in one transaction.
	Apply(ctx context.Context, changes Changes) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// notification_devices table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT address, name, enabled, created_at, updated_at FROM notification_devices`

// GetByAddress retrieves a device by address.
func (r *SQLiteRepository) GetByAddress(ctx context.Context, address string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE address = ?`, address)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by address: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectColumns+` ORDER BY name, address`)
}

// ListEnabled retrieves enabled devices.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectColumns+` WHERE enabled = 1 ORDER BY name, address`)
}

// Insert adds a new device. CreatedAt and UpdatedAt are set on the passed device.
func (r *SQLiteRepository) Insert(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}
	if err := insertDevice(ctx, r.db, device, time.Now().UTC()); err != nil {
		return err
	}
	return nil
}

// Update replaces the name and enabled flag of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_devices
		SET name = ?, enabled = ?, updated_at = ?
		WHERE address = ?`,
		device.Name, boolToInt(device.Enabled), now.Format(time.RFC3339), device.Address,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}
	device.UpdatedAt = now
	return nil
}

// SetEnabled sets the enabled flag of a device.
func (r *SQLiteRepository) SetEnabled(ctx context.Context, address string, enabled bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_devices
		SET enabled = ?, updated_at = ?
		WHERE address = ?`,
		boolToInt(enabled), time.Now().UTC().Format(time.RFC3339), address,
	)
	if err != nil {
		return fmt.Errorf("setting device enabled: %w", err)
	}
	return requireOneRow(result)
}

// ToggleEnabled inverts the enabled flag and returns the new value.
func (r *SQLiteRepository) ToggleEnabled(ctx context.Context, address string) (bool, error) {
	var enabled int
	err := r.db.QueryRowContext(ctx, `
		UPDATE notification_devices
		SET enabled = NOT enabled, updated_at = ?
		WHERE address = ?
		RETURNING enabled`,
		time.Now().UTC().Format(time.RFC3339), address,
	).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrDeviceNotFound
		}
		return false, fmt.Errorf("toggling device: %w", err)
	}
	return enabled == 1, nil
}

// Delete removes a device by address.
func (r *SQLiteRepository) Delete(ctx context.Context, address string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notification_devices WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireOneRow(result)
}

// EnsureWired inserts the wired source unless it already exists.
func (r *SQLiteRepository) EnsureWired(ctx context.Context, name string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_devices (address, name, enabled, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(address) DO NOTHING`,
		WiredAddress, name, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("ensuring wired device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// Apply writes all changes in one transaction. Deletions run first, then
// renames, then inserts. A rename or deletion of a missing address returns
// ErrDeviceNotFound and a duplicate insert returns ErrDeviceExists; in both
// cases nothing is committed.
func (r *SQLiteRepository) Apply(ctx context.Context, changes Changes) error {
	if changes.Empty() {
		return nil
	}

	for i := range changes.Insert {
		if err := ValidateDevice(&changes.Insert[i]); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC()

	for _, address := range changes.Delete {
		result, err := tx.ExecContext(ctx, `DELETE FROM notification_devices WHERE address = ?`, address)
		if err != nil {
			return fmt.Errorf("deleting device %s: %w", address, err)
		}
		if err := requireOneRow(result); err != nil {
			return fmt.Errorf("deleting device %s: %w", address, err)
		}
	}

	for _, d := range changes.Rename {
		result, err := tx.ExecContext(ctx, `
			UPDATE notification_devices
			SET name = ?, updated_at = ?
			WHERE address = ?`,
			d.Name, now.Format(time.RFC3339), d.Address,
		)
		if err != nil {
			return fmt.Errorf("renaming device %s: %w", d.Address, err)
		}
		if err := requireOneRow(result); err != nil {
			return fmt.Errorf("renaming device %s: %w", d.Address, err)
		}
	}

	for i := range changes.Insert {
		if err := insertDevice(ctx, tx, &changes.Insert[i], now); err != nil {
			return fmt.Errorf("inserting device %s: %w", changes.Insert[i].Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing changes: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertDevice(ctx context.Context, ex execer, device *Device, now time.Time) error {
	device.CreatedAt = now
	device.UpdatedAt = now

	_, err := ex.ExecContext(ctx, `
		INSERT INTO notification_devices (address, name, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		device.Address, device.Name, boolToInt(device.Enabled),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                    Device
		enabled              int
		createdAt, updatedAt string
	)
	if err := row.Scan(&d.Address, &d.Name, &enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Enabled = enabled == 1

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique or primary key violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
