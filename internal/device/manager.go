package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/reactive"
)

// Opener constructs a new Store, typically by opening and migrating a database.
type Opener func(ctx context.Context) (*Store, error)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Opener creates each Store instance. Required.
	Opener Opener

	// WiredName is the display name for the wired source. Defaults to DefaultWiredName.
	WiredName string

	// Logger receives lifecycle events. Optional.
	Logger Logger
}

// Manager owns the single current Store of the process.
//
// The current instance is held in a reactive.Cell, so callers can wait for it
// with AwaitCurrent and derived projections follow it through reopen cycles.
// OpenDB and CloseDB are serialised; readers see either the old or the new
// instance, never one that has not finished opening.
type Manager struct {
	opener    Opener
	wiredName string
	logger    Logger

	mu      sync.Mutex
	closed  bool
	current *reactive.Cell[*Store]

	all         *reactive.Feed[[]Device]
	enabled     *reactive.Feed[[]Device]
	stopAll     func()
	stopEnabled func()
}

// NewManager creates a Manager and opens the first Store.
func NewManager(ctx context.Context, opts ManagerOptions) (*Manager, error) {
	if opts.Opener == nil {
		return nil, errors.New("device: manager requires an opener")
	}
	if opts.WiredName == "" {
		opts.WiredName = DefaultWiredName
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	m := &Manager{
		opener:    opts.Opener,
		wiredName: opts.WiredName,
		logger:    opts.Logger,
		current:   reactive.NewCell[*Store](),
	}
	m.all, m.stopAll = reactive.Switch(m.current.Feed(), pickAll)
	m.enabled, m.stopEnabled = reactive.Switch(m.current.Feed(), pickEnabled)

	if _, err := m.OpenDB(ctx); err != nil {
		m.stopAll()
		m.stopEnabled()
		return nil, err
	}
	return m, nil
}

func pickAll(s *Store) *reactive.Feed[[]Device] {
	if s == nil {
		return nil
	}
	return s.All()
}

func pickEnabled(s *Store) *reactive.Feed[[]Device] {
	if s == nil {
		return nil
	}
	return s.Enabled()
}

// OpenDB opens a new Store, ensures the wired source exists in it, publishes
// it as current and closes the previous instance.
func (m *Manager) OpenDB(ctx context.Context) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	store, err := m.opener(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	store.SetLogger(m.logger)

	if _, err := store.EnsureWired(ctx, m.wiredName); err != nil {
		if closeErr := store.Close(); closeErr != nil {
			m.logger.Warn("closing store after failed open", "error", closeErr)
		}
		return nil, err
	}

	prev, had := m.current.Set(store)
	if had && prev != nil {
		if err := prev.Close(); err != nil {
			m.logger.Warn("closing previous store", "error", err)
		}
	}

	m.logger.Info("store opened", "replaced", had && prev != nil)
	return store, nil
}

// CloseDB closes the current Store and publishes that none is available.
// Waiters in AwaitCurrent keep waiting for the next OpenDB.
func (m *Manager) CloseDB() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCurrentLocked()
}

func (m *Manager) closeCurrentLocked() error {
	prev, had := m.current.Clear()
	if !had || prev == nil {
		return nil
	}
	m.logger.Info("store closed")
	return prev.Close()
}

// AwaitCurrent returns the current Store, waiting up to timeout for one to
// be opened. It returns ErrStoreUnavailable on timeout and ctx.Err() when
// ctx ends first.
func (m *Manager) AwaitCurrent(ctx context.Context, timeout time.Duration) (*Store, error) {
	store, err := m.current.Await(ctx, timeout)
	if err != nil {
		if errors.Is(err, reactive.ErrTimeout) {
			return nil, fmt.Errorf("%w: none opened within %s", ErrStoreUnavailable, timeout)
		}
		return nil, err
	}
	return store, nil
}

// Current returns the feed of the current Store. A nil value means no Store
// is open.
func (m *Manager) Current() *reactive.Feed[*Store] {
	return m.current.Feed()
}

// AllDevices returns a feed of every device in whichever Store is current.
// When the Store is replaced the feed switches to the new one; while none is
// open it emits nothing.
func (m *Manager) AllDevices() *reactive.Feed[[]Device] {
	return m.all
}

// EnabledDevices is AllDevices restricted to enabled devices.
func (m *Manager) EnabledDevices() *reactive.Feed[[]Device] {
	return m.enabled
}

// Close stops the projections and closes the current Store. Later calls to
// OpenDB return ErrStoreClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	err := m.closeCurrentLocked()
	m.stopAll()
	m.stopEnabled()
	m.current.Feed().Close()
	return err
}
