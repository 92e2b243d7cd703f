package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// memoryOpener opens a fresh in-memory database per call and counts opens.
func memoryOpener(opens *atomic.Int32) Opener {
	return func(ctx context.Context) (*Store, error) {
		db, err := openMemoryDB()
		if err != nil {
			return nil, err
		}
		if opens != nil {
			opens.Add(1)
		}
		return NewStore(ctx, NewSQLiteRepository(db), db)
	}
}

func newTestManager(t *testing.T, opens *atomic.Int32) *Manager {
	t.Helper()
	mgr, err := NewManager(context.Background(), ManagerOptions{Opener: memoryOpener(opens)})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestNewManager_OpensEagerlyWithWiredSource(t *testing.T) {
	var opens atomic.Int32
	mgr := newTestManager(t, &opens)

	if opens.Load() != 1 {
		t.Errorf("opens = %d, want 1", opens.Load())
	}

	store, err := mgr.AwaitCurrent(context.Background(), time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitCurrent() error = %v", err)
	}
	wired, err := store.GetByAddress(context.Background(), WiredAddress)
	if err != nil {
		t.Fatalf("wired source missing: %v", err)
	}
	if wired.Name != DefaultWiredName || !wired.Enabled {
		t.Errorf("wired source = %+v", wired)
	}

	if got := latest(t, mgr.AllDevices()); !equalStrings(got, []string{WiredAddress}) {
		t.Errorf("AllDevices() = %v", got)
	}
}

func TestNewManager_RequiresOpener(t *testing.T) {
	if _, err := NewManager(context.Background(), ManagerOptions{}); err == nil {
		t.Error("NewManager() without opener should fail")
	}
}

func TestNewManager_OpenError(t *testing.T) {
	openErr := errors.New("no disk")
	_, err := NewManager(context.Background(), ManagerOptions{
		Opener: func(context.Context) (*Store, error) { return nil, openErr },
	})
	if !errors.Is(err, openErr) {
		t.Errorf("NewManager() error = %v, want wrapped open error", err)
	}
}

func TestManager_AwaitCurrentTimesOutWhenClosed(t *testing.T) {
	mgr := newTestManager(t, nil)

	if err := mgr.CloseDB(); err != nil {
		t.Fatalf("CloseDB() error = %v", err)
	}

	start := time.Now()
	_, err := mgr.AwaitCurrent(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("AwaitCurrent() error = %v, want ErrStoreUnavailable", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("AwaitCurrent() returned before the timeout")
	}
}

func TestManager_AwaitCurrentWakesOnOpen(t *testing.T) {
	mgr := newTestManager(t, nil)
	if err := mgr.CloseDB(); err != nil {
		t.Fatalf("CloseDB() error = %v", err)
	}

	type result struct {
		store *Store
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := mgr.AwaitCurrent(context.Background(), 5*time.Second)
		done <- result{s, err}
	}()

	time.Sleep(20 * time.Millisecond)
	opened, err := mgr.OpenDB(context.Background())
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("AwaitCurrent() error = %v", r.err)
		}
		if r.store != opened {
			t.Error("AwaitCurrent() returned a different store than OpenDB")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitCurrent() did not wake after OpenDB")
	}
}

func TestManager_AwaitCurrentContextCancelled(t *testing.T) {
	mgr := newTestManager(t, nil)
	if err := mgr.CloseDB(); err != nil {
		t.Fatalf("CloseDB() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mgr.AwaitCurrent(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("AwaitCurrent() error = %v, want context.Canceled", err)
	}
}

func TestManager_OpenDBReplacesAndClosesPrevious(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	first, _ := mgr.AwaitCurrent(ctx, time.Millisecond)
	second, err := mgr.OpenDB(ctx)
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	if first == second {
		t.Fatal("OpenDB() should construct a new store")
	}

	if _, err := first.List(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("previous store List() error = %v, want ErrStoreClosed", err)
	}
	current, _ := mgr.AwaitCurrent(ctx, time.Millisecond)
	if current != second {
		t.Error("current store is not the newly opened one")
	}
}

func TestManager_ProjectionsSwitchToLatestStore(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	sub := mgr.AllDevices().Subscribe()
	defer sub.Close()
	if got := addresses(nextList(t, sub)); !equalStrings(got, []string{WiredAddress}) {
		t.Fatalf("initial projection = %v", got)
	}

	first, _ := mgr.AwaitCurrent(ctx, time.Millisecond)
	if err := first.Insert(ctx, testDevice("AA:1", "Headset", true)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := addresses(nextList(t, sub)); !equalStrings(got, []string{"AA:1", WiredAddress}) {
		t.Fatalf("projection after insert = %v", got)
	}

	// Reopening yields a fresh database holding only the wired source.
	second, err := mgr.OpenDB(ctx)
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	if got := addresses(nextList(t, sub)); !equalStrings(got, []string{WiredAddress}) {
		t.Fatalf("projection after reopen = %v", got)
	}

	if err := second.Insert(ctx, testDevice("BB:2", "Speaker", false)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := addresses(nextList(t, sub)); !equalStrings(got, []string{"BB:2", WiredAddress}) {
		t.Errorf("projection after insert into new store = %v", got)
	}

	enabled := latest(t, mgr.EnabledDevices())
	if !equalStrings(enabled, []string{WiredAddress}) {
		t.Errorf("EnabledDevices() = %v", enabled)
	}
}

func TestManager_ProjectionPausesWhileClosed(t *testing.T) {
	mgr := newTestManager(t, nil)

	sub := mgr.EnabledDevices().Subscribe()
	defer sub.Close()
	nextList(t, sub)

	if err := mgr.CloseDB(); err != nil {
		t.Fatalf("CloseDB() error = %v", err)
	}
	assertNoEmission(t, sub)

	if got := latest(t, mgr.EnabledDevices()); !equalStrings(got, []string{WiredAddress}) {
		t.Errorf("EnabledDevices() kept value = %v", got)
	}

	if _, err := mgr.OpenDB(context.Background()); err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	if got := addresses(nextList(t, sub)); !equalStrings(got, []string{WiredAddress}) {
		t.Errorf("projection after reopen = %v", got)
	}
}

func TestManager_Close(t *testing.T) {
	mgr, err := NewManager(context.Background(), ManagerOptions{Opener: memoryOpener(nil), WiredName: "Jack"})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	store, _ := mgr.AwaitCurrent(context.Background(), time.Millisecond)

	sub := mgr.AllDevices().Subscribe()
	got := nextList(t, sub)
	if len(got) != 1 || got[0].Name != "Jack" {
		t.Errorf("wired name = %+v, want Jack", got)
	}

	if err := mgr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, ok := <-sub.C(); ok {
		t.Error("projection should be closed")
	}
	if _, err := store.List(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("store List() error = %v, want ErrStoreClosed", err)
	}
	if _, err := mgr.OpenDB(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("OpenDB() after Close error = %v, want ErrStoreClosed", err)
	}
}
