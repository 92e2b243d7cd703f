package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// DefaultStorageDir is where BlueZ keeps per-adapter pairing data, one
// directory per adapter address with one directory per bonded device.
const DefaultStorageDir = "/var/lib/bluetooth"

// StorageWatcher reports pairing changes by watching the BlueZ storage
// directory. It catches bonds made while the D-Bus watch was down.
type StorageWatcher struct {
	dir    string
	logger Logger
}

// NewStorageWatcher watches dir (DefaultStorageDir when empty).
func NewStorageWatcher(dir string, logger Logger) *StorageWatcher {
	if dir == "" {
		dir = DefaultStorageDir
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &StorageWatcher{dir: dir, logger: logger}
}

// Watch invokes fn when a device directory appears, disappears or is
// renamed under any adapter directory. File writes are ignored: BlueZ
// rewrites its cache files on every connection.
func (s *StorageWatcher) Watch(ctx context.Context, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating storage watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck // closing ends the watch

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			s.addAdapterDir(w, filepath.Join(s.dir, e.Name()))
		}
	}

	s.logger.Info("watching bluez storage for pairing changes", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return ErrWatchClosed
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == s.dir {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					s.addAdapterDir(w, ev.Name)
				}
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				fn()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return ErrWatchClosed
			}
			s.logger.Warn("bluez storage watch error", "error", werr)
		}
	}
}

func (s *StorageWatcher) addAdapterDir(w *fsnotify.Watcher, dir string) {
	if err := w.Add(dir); err != nil {
		s.logger.Warn("cannot watch adapter storage", "dir", dir, "error", err)
	}
}

// Watchers combines several change sources. Watch runs them concurrently
// and returns once all have returned, joining their errors. One failing
// source does not stop the others.
type Watchers []Watcher

// Watch implements Watcher. fn may be called from several goroutines.
func (ws Watchers) Watch(ctx context.Context, fn func()) error {
	errs := make([]error, len(ws))
	var g errgroup.Group
	for i, w := range ws {
		g.Go(func() error {
			errs[i] = w.Watch(ctx, fn)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines report through errs
	return errors.Join(errs...)
}
