package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// waitForChange creates directories under parent until fn reports a change,
// covering the window before the watch is installed.
func waitForChange(t *testing.T, parent string, changed <-chan struct{}) {
	t.Helper()
	for i := 0; i < 20; i++ {
		if err := os.Mkdir(filepath.Join(parent, fmt.Sprintf("dev-%d", i)), 0o700); err != nil {
			t.Fatal(err)
		}
		select {
		case <-changed:
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatal("no change reported")
}

func startStorageWatch(t *testing.T, dir string) <-chan struct{} {
	t.Helper()
	changed := make(chan struct{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewStorageWatcher(dir, nil).Watch(ctx, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	})
	return changed
}

func TestStorageWatcher_DeviceDirectories(t *testing.T) {
	root := t.TempDir()
	adapter := filepath.Join(root, "00:11:22:33:44:55")
	if err := os.Mkdir(adapter, 0o700); err != nil {
		t.Fatal(err)
	}

	changed := startStorageWatch(t, root)
	waitForChange(t, adapter, changed)
}

func TestStorageWatcher_NewAdapterDirectory(t *testing.T) {
	root := t.TempDir()
	changed := startStorageWatch(t, root)

	// The adapter directory itself is a change and gets watched.
	waitForChange(t, root, changed)
	adapter := filepath.Join(root, "dev-0")

	// Drop late notifications for the adapter directories.
	time.Sleep(200 * time.Millisecond)
	for len(changed) > 0 {
		<-changed
	}

	deadline := time.Now().Add(2 * time.Second)
	for i := 0; time.Now().Before(deadline); i++ {
		if err := os.Mkdir(filepath.Join(adapter, fmt.Sprintf("AA:%02d", i)), 0o700); err != nil {
			t.Fatal(err)
		}
		select {
		case <-changed:
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatal("device directory under a new adapter was not reported")
}

func TestStorageWatcher_MissingDirectory(t *testing.T) {
	err := NewStorageWatcher(filepath.Join(t.TempDir(), "absent"), nil).Watch(context.Background(), func() {})
	if err == nil {
		t.Fatal("Watch() on a missing directory should fail")
	}
}

type funcWatcher func(ctx context.Context, fn func()) error

func (f funcWatcher) Watch(ctx context.Context, fn func()) error { return f(ctx, fn) }

func TestWatchers(t *testing.T) {
	boom := errors.New("no system bus")
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	ws := Watchers{
		funcWatcher(func(context.Context, func()) error { return boom }),
		funcWatcher(func(ctx context.Context, fn func()) error {
			fn()
			cancel()
			<-ctx.Done()
			return nil
		}),
	}

	err := ws.Watch(ctx, func() { calls.Add(1) })
	if !errors.Is(err, boom) {
		t.Errorf("Watch() error = %v, want the failing watcher's error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("fn calls = %d, want 1", calls.Load())
	}
}
