package sources

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-notify/internal/bluetooth"
)

// Default watcher settings.
const (
	DefaultDebounce    = 2 * time.Second
	DefaultSyncTimeout = 30 * time.Second
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Engine *Engine
	Prober bluetooth.Prober

	// Changes signals that the bonded set may have changed. Optional.
	Changes bluetooth.Watcher

	// ResyncInterval forces a periodic resync. Zero disables it.
	ResyncInterval time.Duration

	// Debounce is the minimum spacing between signal-driven resyncs.
	Debounce time.Duration

	// SyncTimeout bounds a single probe and reconcile.
	SyncTimeout time.Duration

	Logger Logger
}

// Watcher keeps the stored sources in step with the Bluetooth stack.
//
// It syncs once at start, again after every change signal (rate limited so
// a burst of signals costs one extra run) and on a fixed interval.
// Concurrent Resync calls share a single probe and reconcile.
type Watcher struct {
	engine   *Engine
	prober   bluetooth.Prober
	changes  bluetooth.Watcher
	interval time.Duration
	timeout  time.Duration
	logger   Logger

	limiter *rate.Limiter
	group   singleflight.Group
	trigger chan struct{}
}

// NewWatcher creates a Watcher.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Engine == nil {
		return nil, ErrNoStores
	}
	if opts.Prober == nil {
		return nil, ErrNoProber
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Watcher{
		engine:   opts.Engine,
		prober:   opts.Prober,
		changes:  opts.Changes,
		interval: opts.ResyncInterval,
		timeout:  opts.SyncTimeout,
		logger:   opts.Logger,
		limiter:  rate.NewLimiter(rate.Every(opts.Debounce), 1),
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Resync probes the Bluetooth stack and reconciles. Callers that arrive
// while a resync is in flight receive its result.
func (w *Watcher) Resync(ctx context.Context) (Report, error) {
	v, err, shared := w.group.Do("resync", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()

		probe := w.prober.Probe(runCtx)
		return w.engine.Sync(runCtx, probe)
	})
	if shared {
		w.logger.Debug("resync shared with in-flight run")
	}
	report, _ := v.(Report)
	return report, err
}

// Trigger requests a resync from the Run loop. It never blocks; requests
// made while one is pending are merged.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run performs the initial sync and then serves triggers until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.resync(ctx, "startup")

	if w.changes != nil {
		go func() {
			if err := w.changes.Watch(ctx, w.Trigger); err != nil && ctx.Err() == nil {
				w.logger.Warn("bluetooth change watch stopped", "error", err)
			}
		}()
	}

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.trigger:
			if err := w.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			// Signals that arrived while waiting are covered by this run.
			select {
			case <-w.trigger:
			default:
			}
			w.resync(ctx, "change")

		case <-tick:
			w.resync(ctx, "interval")
		}
	}
}

func (w *Watcher) resync(ctx context.Context, reason string) {
	report, err := w.Resync(ctx)
	if err != nil {
		w.logger.Error("resync failed", "reason", reason, "error", err)
		return
	}
	w.logger.Debug("resync complete", "reason", reason, "outcome", report.Outcome)
}
