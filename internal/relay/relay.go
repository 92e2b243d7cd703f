// Package relay mirrors the source projections onto MQTT and accepts
// commands from it.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-notify/internal/device"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-notify/internal/reactive"
	"github.com/nerrad567/gray-logic-notify/internal/sources"
)

// Broker is the subset of *mqtt.Client the relay needs.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Syncer runs a probe-driven resync. *sources.Watcher implements it.
type Syncer interface {
	Resync(ctx context.Context) (sources.Report, error)
}

// Toggler changes enabled flags. *sources.Engine implements it.
type Toggler interface {
	ToggleDevice(ctx context.Context, address string) (*device.Device, error)
	SetDeviceEnabled(ctx context.Context, address string, enabled bool) (*device.Device, error)
}

// Logger defines the logging interface used by Relay.
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

// Options configures a Relay.
type Options struct {
	Broker  Broker
	All     *reactive.Feed[[]device.Device]
	Enabled *reactive.Feed[[]device.Device]
	Syncer  Syncer
	Toggler Toggler
	QoS     byte
	Logger  Logger
}

// Relay publishes every projection emission as a retained message and
// executes commands received on the command topics.
type Relay struct {
	broker  Broker
	all     *reactive.Feed[[]device.Device]
	enabled *reactive.Feed[[]device.Device]
	syncer  Syncer
	toggler Toggler
	qos     byte
	logger  Logger

	// ctx is the Run context, used by command handlers.
	mu  sync.RWMutex
	ctx context.Context
}

// AddressCommand is the payload of the toggle command.
type AddressCommand struct {
	Address string `json:"address"`
}

// EnabledCommand is the payload of the set-enabled command.
type EnabledCommand struct {
	Address string `json:"address"`
	Enabled *bool  `json:"enabled"`
}

// New creates a Relay.
func New(opts Options) (*Relay, error) {
	if opts.Broker == nil {
		return nil, errors.New("relay: broker is required")
	}
	if opts.All == nil || opts.Enabled == nil {
		return nil, errors.New("relay: both projections are required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Relay{
		broker:  opts.Broker,
		all:     opts.All,
		enabled: opts.Enabled,
		syncer:  opts.Syncer,
		toggler: opts.Toggler,
		qos:     opts.QoS,
		logger:  opts.Logger,
		ctx:     context.Background(),
	}, nil
}

// Run subscribes to the command topics and forwards projection emissions
// until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	topics := mqtt.Topics{}
	commands := map[string]mqtt.MessageHandler{
		topics.CommandSync():       r.handleSync,
		topics.CommandToggle():     r.handleToggle,
		topics.CommandSetEnabled(): r.handleSetEnabled,
	}
	for topic, handler := range commands {
		if err := r.broker.Subscribe(topic, r.qos, handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	allSub := r.all.Subscribe()
	defer allSub.Close()
	enabledSub := r.enabled.Subscribe()
	defer enabledSub.Close()

	r.logger.Info("mqtt relay started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case list, ok := <-allSub.C():
			if !ok {
				return nil
			}
			r.publishList(topics.SourcesAll(), list)
		case list, ok := <-enabledSub.C():
			if !ok {
				return nil
			}
			r.publishList(topics.SourcesEnabled(), list)
		}
	}
}

// Republish sends the latest projections again, e.g. after a reconnect.
func (r *Relay) Republish() {
	if list, ok := r.all.Latest(); ok {
		r.publishList(mqtt.Topics{}.SourcesAll(), list)
	}
	if list, ok := r.enabled.Latest(); ok {
		r.publishList(mqtt.Topics{}.SourcesEnabled(), list)
	}
}

// RecordSync publishes a reconciliation report. It implements sources.Recorder.
func (r *Relay) RecordSync(_ context.Context, report sources.Report) {
	payload, err := json.Marshal(report)
	if err != nil {
		r.logger.Error("encoding sync report", "error", err)
		return
	}
	if err := r.broker.PublishEvent(mqtt.Topics{}.SyncReport(), payload); err != nil {
		r.logger.Warn("publishing sync report failed", "error", err)
	}
}

func (r *Relay) publishList(topic string, list []device.Device) {
	if list == nil {
		list = []device.Device{}
	}
	payload, err := json.Marshal(list)
	if err != nil {
		r.logger.Error("encoding source list", "topic", topic, "error", err)
		return
	}
	if err := r.broker.PublishRetained(topic, payload); err != nil {
		r.logger.Warn("publishing source list failed", "topic", topic, "error", err)
		return
	}
	r.logger.Debug("source list published", "topic", topic, "count", len(list))
}

func (r *Relay) runContext() context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctx
}

func (r *Relay) handleSync(string, []byte) error {
	if r.syncer == nil {
		return errors.New("sync command received but no syncer is configured")
	}
	report, err := r.syncer.Resync(r.runContext())
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	r.logger.Info("resync requested over mqtt", "outcome", report.Outcome)
	return nil
}

func (r *Relay) handleToggle(_ string, payload []byte) error {
	if r.toggler == nil {
		return errors.New("toggle command received but no toggler is configured")
	}
	var cmd AddressCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decoding toggle command: %w", err)
	}
	if cmd.Address == "" {
		return errors.New("toggle command without address")
	}
	if _, err := r.toggler.ToggleDevice(r.runContext(), cmd.Address); err != nil {
		return fmt.Errorf("toggle %s: %w", cmd.Address, err)
	}
	return nil
}

func (r *Relay) handleSetEnabled(_ string, payload []byte) error {
	if r.toggler == nil {
		return errors.New("enabled command received but no toggler is configured")
	}
	var cmd EnabledCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decoding enabled command: %w", err)
	}
	if cmd.Address == "" || cmd.Enabled == nil {
		return errors.New("enabled command requires address and enabled")
	}
	if _, err := r.toggler.SetDeviceEnabled(r.runContext(), cmd.Address, *cmd.Enabled); err != nil {
		return fmt.Errorf("set %s enabled: %w", cmd.Address, err)
	}
	return nil
}
