package device

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nerrad567/gray-logic-notify/internal/reactive"
)

// Logger defines the logging interface used by Store and Manager.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store wraps a Repository and publishes the device list after every write.
//
// The All and Enabled feeds are republished before a mutating method
// returns, so a caller that reads or receives from a feed after its own
// write sees that write. Writes that change nothing do not republish.
// A write that commits but cannot republish returns an error wrapping
// ErrFeedsStale; the feeds catch up on the next successful write.
//
// All public methods are thread-safe.
type Store struct {
	repo   Repository
	closer io.Closer
	logger Logger

	// mu is held for writing across each mutation and the republish that
	// follows it, so feed values are emitted in commit order.
	mu     sync.RWMutex
	closed bool

	all     *reactive.Feed[[]Device]
	enabled *reactive.Feed[[]Device]
}

// NewStore creates a Store over repo and publishes the current contents.
// closer, if non-nil, is closed by Close (typically the database handle).
func NewStore(ctx context.Context, repo Repository, closer io.Closer) (*Store, error) {
	s := &Store{
		repo:    repo,
		closer:  closer,
		logger:  noopLogger{},
		all:     reactive.NewFeed[[]Device](),
		enabled: reactive.NewFeed[[]Device](),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// All returns the feed of every device, ordered by name then address.
// A new subscriber receives the current list immediately.
func (s *Store) All() *reactive.Feed[[]Device] {
	return s.all
}

// Enabled returns the feed of enabled devices, ordered by name then address.
func (s *Store) Enabled() *reactive.Feed[[]Device] {
	return s.enabled
}

// GetByAddress retrieves a device by address.
// Returns ErrDeviceNotFound if the device does not exist.
func (s *Store) GetByAddress(ctx context.Context, address string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.repo.GetByAddress(ctx, address)
}

// List retrieves all devices ordered by name then address.
func (s *Store) List(ctx context.Context) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.repo.List(ctx)
}

// ListEnabled retrieves enabled devices ordered by name then address.
func (s *Store) ListEnabled(ctx context.Context) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.repo.ListEnabled(ctx)
}

// Insert adds a new device.
// Returns ErrDeviceExists if the address is already stored.
func (s *Store) Insert(ctx context.Context, device *Device) error {
	return s.mutate(ctx, func(ctx context.Context) (bool, error) {
		return true, s.repo.Insert(ctx, device)
	})
}

// Update replaces the name and enabled flag of an existing device.
func (s *Store) Update(ctx context.Context, device *Device) error {
	return s.mutate(ctx, func(ctx context.Context) (bool, error) {
		return true, s.repo.Update(ctx, device)
	})
}

// SetEnabled sets the enabled flag of a device.
func (s *Store) SetEnabled(ctx context.Context, address string, enabled bool) error {
	return s.mutate(ctx, func(ctx context.Context) (bool, error) {
		return true, s.repo.SetEnabled(ctx, address, enabled)
	})
}

// ToggleEnabled inverts the enabled flag of a device in a single statement
// and returns the new value.
// Returns ErrDeviceNotFound if the device does not exist.
func (s *Store) ToggleEnabled(ctx context.Context, address string) (bool, error) {
	var enabled bool
	err := s.mutate(ctx, func(ctx context.Context) (bool, error) {
		var err error
		enabled, err = s.repo.ToggleEnabled(ctx, address)
		return true, err
	})
	return enabled, err
}

// Delete removes a device by address. The wired source cannot be deleted.
func (s *Store) Delete(ctx context.Context, address string) error {
	if address == WiredAddress {
		return fmt.Errorf("%w: the wired source cannot be deleted", ErrInvalidAddress)
	}
	return s.mutate(ctx, func(ctx context.Context) (bool, error) {
		return true, s.repo.Delete(ctx, address)
	})
}

// EnsureWired creates the wired source if it is missing and reports whether
// it did so.
func (s *Store) EnsureWired(ctx context.Context, name string) (bool, error) {
	var created bool
	err := s.mutate(ctx, func(ctx context.Context) (bool, error) {
		var err error
		created, err = s.repo.EnsureWired(ctx, name)
		return created, err
	})
	if created {
		s.logger.Info("wired source created", "name", name)
	}
	return created, err
}

// Apply writes changes in one transaction and republishes once.
// Empty changes perform no write and no republish.
func (s *Store) Apply(ctx context.Context, changes Changes) error {
	for _, address := range changes.Delete {
		if address == WiredAddress {
			return fmt.Errorf("%w: the wired source cannot be deleted", ErrInvalidAddress)
		}
	}
	return s.mutate(ctx, func(ctx context.Context) (bool, error) {
		if changes.Empty() {
			return false, nil
		}
		return true, s.repo.Apply(ctx, changes)
	})
}

// Close closes both feeds and the underlying closer. Later calls return
// ErrStoreClosed from every method except Close, which is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.all.Close()
	s.enabled.Close()

	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			return fmt.Errorf("closing store: %w", err)
		}
	}
	return nil
}

// mutate runs write under the write lock and republishes when write reports
// a change without error.
func (s *Store) mutate(ctx context.Context, write func(context.Context) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	changed, err := write(ctx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	// The write is durable; finish the republish even if ctx ends now.
	if err := s.refreshLocked(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("device write committed but feeds not republished", "error", err)
		return fmt.Errorf("%w: %w", ErrFeedsStale, err)
	}
	return nil
}

func (s *Store) refreshLocked(ctx context.Context) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("refreshing device feeds: %w", err)
	}
	s.all.Publish(list)
	s.enabled.Publish(FilterEnabled(list))
	s.logger.Debug("device feeds republished", "count", len(list))
	return nil
}
