package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/bluetooth"
	"github.com/nerrad567/gray-logic-notify/internal/device"
)

// Default engine settings.
const (
	DefaultAwaitTimeout = 5 * time.Second
)

// Outcome classifies a reconciliation run.
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeUnchanged          Outcome = "unchanged"
	OutcomePermissionDenied   Outcome = "permission_denied"
	OutcomeAdapterUnavailable Outcome = "adapter_unavailable"
	OutcomeFailed             Outcome = "failed"
)

// Report summarises one reconciliation run.
type Report struct {
	Outcome  Outcome       `json:"outcome"`
	Inserted int           `json:"inserted"`
	Deleted  int           `json:"deleted"`
	Renamed  int           `json:"renamed"`
	Ignored  int           `json:"ignored"`
	Skipped  bool          `json:"skipped"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StoreProvider yields the current device store, waiting for one if needed.
// *device.Manager implements it.
type StoreProvider interface {
	AwaitCurrent(ctx context.Context, timeout time.Duration) (*device.Store, error)
}

// Recorder receives every finished Report, e.g. to persist sync history.
type Recorder interface {
	RecordSync(ctx context.Context, report Report)
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Stores       StoreProvider
	WiredName    string
	AwaitTimeout time.Duration
	Logger       Logger
	Recorder     Recorder
}

// Engine reconciles the stored sources with the bonded-device snapshot and
// serves enable/disable requests.
//
// Reconciliation runs are serialised, so each run plans against the state
// the previous run left behind.
type Engine struct {
	stores       StoreProvider
	wiredName    string
	awaitTimeout time.Duration
	logger       Logger
	recorder     Recorder

	syncMu sync.Mutex
	now    func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Stores == nil {
		return nil, ErrNoStores
	}
	e := &Engine{
		stores:       opts.Stores,
		wiredName:    opts.WiredName,
		awaitTimeout: opts.AwaitTimeout,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		now:          time.Now,
	}
	if e.wiredName == "" {
		e.wiredName = device.DefaultWiredName
	}
	if e.awaitTimeout <= 0 {
		e.awaitTimeout = DefaultAwaitTimeout
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	return e, nil
}

// SyncWithBondedDevices reconciles against a snapshot. A nil bonded slice
// means no snapshot could be taken; an empty one means nothing is bonded.
func (e *Engine) SyncWithBondedDevices(ctx context.Context, permissionGranted bool, bonded []bluetooth.BondedDevice) (Report, error) {
	var probe bluetooth.Probe
	switch {
	case !permissionGranted:
		probe = bluetooth.Denied(nil)
	case bonded == nil:
		probe = bluetooth.Unavailable(nil)
	default:
		probe = bluetooth.Available(bonded)
	}
	return e.Sync(ctx, probe)
}

// Sync reconciles against a probe result.
//
// The wired source is ensured first, whatever the probe says. Denied and
// unavailable probes stop there and return a skipped report without error.
// Otherwise the stored list is read once, a plan is computed and applied
// in a single transaction. Once applying starts it is not cancelled by ctx.
func (e *Engine) Sync(ctx context.Context, probe bluetooth.Probe) (Report, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	start := e.now()
	report, err := e.sync(ctx, probe)
	report.At = start
	report.Duration = e.now().Sub(start)
	if err != nil {
		report.Outcome = OutcomeFailed
		e.logger.Error("source sync failed", "error", err)
	}

	recordSyncMetrics(report)
	if e.recorder != nil {
		e.recorder.RecordSync(context.WithoutCancel(ctx), report)
	}
	return report, err
}

func (e *Engine) sync(ctx context.Context, probe bluetooth.Probe) (Report, error) {
	store, err := e.stores.AwaitCurrent(ctx, e.awaitTimeout)
	if err != nil {
		return Report{}, fmt.Errorf("awaiting device store: %w", err)
	}

	if _, err := store.EnsureWired(ctx, e.wiredName); e.failed(err) {
		return Report{}, fmt.Errorf("ensuring wired source: %w", err)
	}

	switch probe.Status {
	case bluetooth.StatusAvailable:
	case bluetooth.StatusPermissionDenied:
		e.logger.Info("skipping source sync: bluetooth permission not granted", "cause", probe.Err)
		return Report{Outcome: OutcomePermissionDenied, Skipped: true, Reason: probe.Status.String()}, nil
	default:
		e.logger.Info("skipping source sync: bonded devices unavailable", "cause", probe.Err)
		return Report{Outcome: OutcomeAdapterUnavailable, Skipped: true, Reason: probe.Status.String()}, nil
	}

	bonded, ignored := e.usableDevices(probe.Devices)

	existing, err := store.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing sources: %w", err)
	}

	changes := ComputePlan(existing, bonded)
	report := Report{
		Outcome:  OutcomeUnchanged,
		Inserted: len(changes.Insert),
		Deleted:  len(changes.Delete),
		Renamed:  len(changes.Rename),
		Ignored:  ignored,
	}
	if changes.Empty() {
		e.logger.Debug("sources already match bonded devices", "bonded", len(bonded))
		return report, nil
	}

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if err := store.Apply(context.WithoutCancel(ctx), changes); e.failed(err) {
		return Report{}, fmt.Errorf("applying source changes: %w", err)
	}

	report.Outcome = OutcomeApplied
	e.logger.Info("sources reconciled",
		"inserted", report.Inserted,
		"deleted", report.Deleted,
		"renamed", report.Renamed,
	)
	return report, nil
}

// usableDevices drops snapshot entries whose address cannot be stored and
// clamps over-long names. A device with a valid address is always kept so
// its stored row and enabled flag survive.
func (e *Engine) usableDevices(bonded []bluetooth.BondedDevice) ([]bluetooth.BondedDevice, int) {
	out := make([]bluetooth.BondedDevice, 0, len(bonded))
	for _, b := range bonded {
		if err := device.ValidateAddress(b.Address); err != nil {
			e.logger.Warn("ignoring bonded device", "address", b.Address, "error", err)
			continue
		}
		if name := device.ClampName(b.Name); name != b.Name {
			e.logger.Warn("truncating bonded device name", "address", b.Address, "length", len(b.Name))
			b.Name = name
		}
		out = append(out, b)
	}
	return out, len(bonded) - len(out)
}

// ToggleDevice inverts the enabled flag of a source and returns the updated
// record. An unknown address is not an error: the result is nil.
func (e *Engine) ToggleDevice(ctx context.Context, address string) (*device.Device, error) {
	store, err := e.stores.AwaitCurrent(ctx, e.awaitTimeout)
	if err != nil {
		toggleTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("awaiting device store: %w", err)
	}

	enabled, err := store.ToggleEnabled(ctx, address)
	if errors.Is(err, device.ErrDeviceNotFound) {
		toggleTotal.WithLabelValues("not_found").Inc()
		e.logger.Debug("toggle ignored: unknown source", "address", address)
		return nil, nil
	}
	if e.failed(err) {
		toggleTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("toggling source %s: %w", address, err)
	}

	toggleTotal.WithLabelValues("ok").Inc()
	e.logger.Info("source toggled", "address", address, "enabled", enabled)

	d, err := e.lookup(ctx, store, address)
	if errors.Is(err, device.ErrDeviceNotFound) {
		e.logger.Debug("toggled source removed before read-back", "address", address)
		return nil, nil
	}
	return d, err
}

// SetDeviceEnabled sets the enabled flag of a source explicitly.
// Returns device.ErrDeviceNotFound for an unknown address.
func (e *Engine) SetDeviceEnabled(ctx context.Context, address string, enabled bool) (*device.Device, error) {
	store, err := e.stores.AwaitCurrent(ctx, e.awaitTimeout)
	if err != nil {
		toggleTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("awaiting device store: %w", err)
	}

	if err := store.SetEnabled(ctx, address, enabled); e.failed(err) {
		result := "error"
		if errors.Is(err, device.ErrDeviceNotFound) {
			result = "not_found"
		}
		toggleTotal.WithLabelValues(result).Inc()
		return nil, fmt.Errorf("setting source %s enabled: %w", address, err)
	}

	toggleTotal.WithLabelValues("ok").Inc()
	e.logger.Info("source enabled flag set", "address", address, "enabled", enabled)
	return e.lookup(ctx, store, address)
}

// failed reports whether err means a store write did not happen. A write
// that committed but left the feeds stale counts as done.
func (e *Engine) failed(err error) bool {
	if errors.Is(err, device.ErrFeedsStale) {
		e.logger.Warn("source write committed with stale feeds", "error", err)
		return false
	}
	return err != nil
}

func (e *Engine) lookup(ctx context.Context, store *device.Store, address string) (*device.Device, error) {
	d, err := store.GetByAddress(context.WithoutCancel(ctx), address)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", address, err)
	}
	return d, nil
}

// Recorders fans a Report out to several recorders in order.
type Recorders []Recorder

// RecordSync implements Recorder.
func (rs Recorders) RecordSync(ctx context.Context, report Report) {
	for _, r := range rs {
		if r != nil {
			r.RecordSync(ctx, report)
		}
	}
}
