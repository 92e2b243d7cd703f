package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testSchema matches the notification_devices migration.
const testSchema = `
	CREATE TABLE notification_devices (
		address TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1 CHECK (enabled IN (0, 1)),
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;
	CREATE INDEX idx_notification_devices_name ON notification_devices(name, address);
`

// openMemoryDB opens an in-memory SQLite database with the schema applied.
// The caller owns the returned handle.
func openMemoryDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(testSchema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// setupTestDB creates an in-memory SQLite database with the notification_devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := openMemoryDB()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// testDevice creates a device for testing.
func testDevice(address, name string, enabled bool) *Device {
	return &Device{Address: address, Name: name, Enabled: enabled}
}

func addresses(list []Device) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.Address
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSQLiteRepository_InsertAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	d := testDevice("AA:BB:CC:DD:EE:01", "Headset", true)
	if err := repo.Insert(ctx, d); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Error("Insert() should set timestamps")
	}

	got, err := repo.GetByAddress(ctx, d.Address)
	if err != nil {
		t.Fatalf("GetByAddress() error = %v", err)
	}
	if got.Name != "Headset" || !got.Enabled {
		t.Errorf("GetByAddress() = %+v", got)
	}
	if !got.CreatedAt.Equal(d.CreatedAt.Truncate(time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, d.CreatedAt)
	}
}

func TestSQLiteRepository_InsertDuplicate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Insert(ctx, testDevice("AA:1", "One", true)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	err := repo.Insert(ctx, testDevice("AA:1", "Again", false))
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Insert() duplicate error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_InsertInvalid(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	tests := []struct {
		name    string
		device  *Device
		wantErr error
	}{
		{"empty address", testDevice("", "x", true), ErrInvalidAddress},
		{"whitespace", testDevice("AA BB", "x", true), ErrInvalidAddress},
		{"long name", testDevice("AA:1", string(make([]byte, 300)), true), ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Insert(context.Background(), tt.device)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Insert() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSQLiteRepository_GetNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByAddress(context.Background(), "nope")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByAddress() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListOrdering(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, d := range []*Device{
		testDevice("CC:3", "Speaker", true),
		testDevice("BB:2", "Alpha", false),
		testDevice("AA:9", "Speaker", true),
		testDevice("DD:4", "Car", true),
	} {
		if err := repo.Insert(ctx, d); err != nil {
			t.Fatalf("Insert(%s) error = %v", d.Address, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"BB:2", "DD:4", "AA:9", "CC:3"}
	if got := addresses(all); !equalStrings(got, want) {
		t.Errorf("List() order = %v, want %v", got, want)
	}

	enabled, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled() error = %v", err)
	}
	want = []string{"DD:4", "AA:9", "CC:3"}
	if got := addresses(enabled); !equalStrings(got, want) {
		t.Errorf("ListEnabled() = %v, want %v", got, want)
	}
}

func TestSQLiteRepository_ListEmpty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	all, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all == nil || len(all) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", all)
	}
}

func TestSQLiteRepository_UpdateAndSetEnabled(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	d := testDevice("AA:1", "Old", true)
	if err := repo.Insert(ctx, d); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	d.Name = "New"
	d.Enabled = false
	if err := repo.Update(ctx, d); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := repo.GetByAddress(ctx, "AA:1")
	if got.Name != "New" || got.Enabled {
		t.Errorf("after Update got %+v", got)
	}

	if err := repo.SetEnabled(ctx, "AA:1", true); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	got, _ = repo.GetByAddress(ctx, "AA:1")
	if !got.Enabled {
		t.Error("SetEnabled(true) did not persist")
	}

	if err := repo.Update(ctx, testDevice("ZZ:9", "x", true)); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Update() missing error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.SetEnabled(ctx, "ZZ:9", true); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetEnabled() missing error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ToggleEnabled(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Insert(ctx, testDevice("AA:1", "Headset", true)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	enabled, err := repo.ToggleEnabled(ctx, "AA:1")
	if err != nil {
		t.Fatalf("ToggleEnabled() error = %v", err)
	}
	if enabled {
		t.Error("first toggle should disable")
	}

	enabled, err = repo.ToggleEnabled(ctx, "AA:1")
	if err != nil {
		t.Fatalf("ToggleEnabled() error = %v", err)
	}
	if !enabled {
		t.Error("second toggle should re-enable")
	}

	if _, err := repo.ToggleEnabled(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ToggleEnabled() missing error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Insert(ctx, testDevice("AA:1", "Headset", true)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := repo.Delete(ctx, "AA:1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByAddress(ctx, "AA:1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("device still present after Delete: %v", err)
	}
	if err := repo.Delete(ctx, "AA:1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_EnsureWired(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	created, err := repo.EnsureWired(ctx, "Wired audio")
	if err != nil {
		t.Fatalf("EnsureWired() error = %v", err)
	}
	if !created {
		t.Error("first EnsureWired() should create the row")
	}

	// A user preference on the wired source survives later calls.
	if err := repo.SetEnabled(ctx, WiredAddress, false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	created, err = repo.EnsureWired(ctx, "Another name")
	if err != nil {
		t.Fatalf("EnsureWired() error = %v", err)
	}
	if created {
		t.Error("second EnsureWired() should not create a row")
	}

	got, err := repo.GetByAddress(ctx, WiredAddress)
	if err != nil {
		t.Fatalf("GetByAddress() error = %v", err)
	}
	if got.Name != "Wired audio" || got.Enabled {
		t.Errorf("wired source = %+v, want original name and enabled=false", got)
	}
}

func TestSQLiteRepository_Apply(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, d := range []*Device{
		testDevice("AA:1", "Old", false),
		testDevice("CC:3", "Gone", true),
	} {
		if err := repo.Insert(ctx, d); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	err := repo.Apply(ctx, Changes{
		Insert: []Device{{Address: "BB:2", Name: "Headset", Enabled: true}},
		Rename: []Device{{Address: "AA:1", Name: "New", Enabled: true}},
		Delete: []string{"CC:3"},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	all, _ := repo.List(ctx)
	if got := addresses(all); !equalStrings(got, []string{"BB:2", "AA:1"}) {
		t.Fatalf("List() after Apply = %v", got)
	}
	renamed, _ := repo.GetByAddress(ctx, "AA:1")
	if renamed.Name != "New" || renamed.Enabled {
		t.Errorf("renamed device = %+v, want name New with enabled=false kept", renamed)
	}
}

func TestSQLiteRepository_ApplyRollsBack(t *testing.T) {
	tests := []struct {
		name    string
		changes Changes
		wantErr error
	}{
		{
			name: "duplicate insert",
			changes: Changes{
				Delete: []string{"AA:1"},
				Insert: []Device{{Address: "BB:2", Name: "Dup", Enabled: true}},
			},
			wantErr: ErrDeviceExists,
		},
		{
			name: "rename missing",
			changes: Changes{
				Delete: []string{"AA:1"},
				Rename: []Device{{Address: "ZZ:9", Name: "Ghost"}},
			},
			wantErr: ErrDeviceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewSQLiteRepository(setupTestDB(t))
			ctx := context.Background()
			for _, d := range []*Device{testDevice("AA:1", "One", true), testDevice("BB:2", "Two", true)} {
				if err := repo.Insert(ctx, d); err != nil {
					t.Fatalf("Insert() error = %v", err)
				}
			}

			err := repo.Apply(ctx, tt.changes)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}

			all, _ := repo.List(ctx)
			if len(all) != 2 {
				t.Errorf("rollback failed, have %v", addresses(all))
			}
		})
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("disk I/O error"), false},
		{"message", errors.New("UNIQUE constraint failed: notification_devices.address"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueConstraintError(tt.err); got != tt.want {
				t.Errorf("isUniqueConstraintError() = %v, want %v", got, tt.want)
			}
		})
	}
}
