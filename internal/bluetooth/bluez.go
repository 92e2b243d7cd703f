package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
)

// D-Bus names used by BlueZ.
const (
	bluezService       = "org.bluez"
	bluezRoot          = "/org/bluez"
	adapterInterface   = "org.bluez.Adapter1"
	deviceInterface    = "org.bluez.Device1"
	objectManager      = "org.freedesktop.DBus.ObjectManager"
	propertiesIface    = "org.freedesktop.DBus.Properties"
	getManagedObjects  = objectManager + ".GetManagedObjects"
	propertiesChanged  = propertiesIface + ".PropertiesChanged"
	interfacesAdded    = objectManager + ".InterfacesAdded"
	interfacesRemoved  = objectManager + ".InterfacesRemoved"
	signalBufferLength = 16
)

// D-Bus error names that mean the caller lacks permission.
var permissionErrorNames = []string{
	"org.freedesktop.DBus.Error.AccessDenied",
	"org.freedesktop.DBus.Error.AuthFailed",
	"org.bluez.Error.NotPermitted",
	"org.bluez.Error.NotAuthorized",
}

// managedObjects is the reply shape of GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Logger defines the logging interface used by BlueZ.
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

// BlueZOptions configures a BlueZ prober.
type BlueZOptions struct {
	// Adapter is the controller name, e.g. "hci0".
	Adapter string

	// Permission is consulted before touching the bus. Nil grants permission.
	Permission PermissionChecker

	Logger Logger
}

// BlueZ reads bonded devices from the BlueZ daemon over the system bus.
// Each Probe opens and closes its own connection.
type BlueZ struct {
	adapter    string
	permission PermissionChecker
	logger     Logger
	connect    func(ctx context.Context) (*dbus.Conn, error)
}

// NewBlueZ creates a BlueZ prober for the given adapter.
func NewBlueZ(opts BlueZOptions) *BlueZ {
	b := &BlueZ{
		adapter:    opts.Adapter,
		permission: opts.Permission,
		logger:     opts.Logger,
		connect: func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSystemBus(dbus.WithContext(ctx))
		},
	}
	if b.adapter == "" {
		b.adapter = "hci0"
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	return b
}

// Probe returns the current bonded-device snapshot for the adapter.
func (b *BlueZ) Probe(ctx context.Context) Probe {
	if b.permission != nil && !b.permission.HasDeviceDiscoveryPermission(ctx) {
		return Denied(ErrPermissionDenied)
	}

	conn, err := b.connect(ctx)
	if err != nil {
		b.logger.Debug("system bus unavailable", "error", err)
		return classifyError(fmt.Errorf("connecting to system bus: %w", err))
	}
	defer conn.Close() //nolint:errcheck // read-only connection

	var objects managedObjects
	call := conn.Object(bluezService, "/").CallWithContext(ctx, getManagedObjects, 0)
	if call.Err != nil {
		b.logger.Debug("GetManagedObjects failed", "error", call.Err)
		return classifyError(fmt.Errorf("listing bluez objects: %w", call.Err))
	}
	if err := call.Store(&objects); err != nil {
		return Unavailable(fmt.Errorf("decoding bluez objects: %w", err))
	}

	probe := bondedFromObjects(objects, b.adapter)
	if probe.Status == StatusAvailable {
		b.logger.Debug("bluetooth probe complete", "adapter", b.adapter, "bonded", len(probe.Devices))
	}
	return probe
}

// Watch subscribes to BlueZ object and property changes and calls fn for
// every signal that may affect the bonded set. fn runs on the watch
// goroutine and should not block.
func (b *BlueZ) Watch(ctx context.Context, fn func()) error {
	conn, err := b.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer conn.Close() //nolint:errcheck // closing ends the subscription

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(propertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchPathNamespace(bluezRoot),
		},
		{
			dbus.WithMatchSender(bluezService),
			dbus.WithMatchInterface(objectManager),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchSender(bluezService),
			dbus.WithMatchInterface(objectManager),
			dbus.WithMatchMember("InterfacesRemoved"),
		},
	}
	for _, opts := range matches {
		if err := conn.AddMatchSignal(opts...); err != nil {
			return fmt.Errorf("adding bluez signal match: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, signalBufferLength)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	b.logger.Info("watching bluez for device changes", "adapter", b.adapter)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return ErrWatchClosed
			}
			if relevantSignal(sig) {
				fn()
			}
		}
	}
}

// bondedFromObjects extracts the bonded devices of one adapter from a
// GetManagedObjects reply. Devices are sorted by address.
func bondedFromObjects(objects managedObjects, adapter string) Probe {
	adapterPath := dbus.ObjectPath(bluezRoot + "/" + adapter)

	adapterProps, ok := objects[adapterPath][adapterInterface]
	if !ok {
		return Unavailable(fmt.Errorf("%w: %s", ErrAdapterNotFound, adapter))
	}
	if !boolProperty(adapterProps, "Powered") {
		return Unavailable(fmt.Errorf("%w: %s", ErrAdapterPoweredOff, adapter))
	}

	devices := []BondedDevice{}
	for path, ifaces := range objects {
		props, ok := ifaces[deviceInterface]
		if !ok || !belongsTo(path, props, adapterPath) {
			continue
		}
		if !boolProperty(props, "Paired") && !boolProperty(props, "Bonded") {
			continue
		}
		address := stringProperty(props, "Address")
		if address == "" {
			continue
		}
		devices = append(devices, BondedDevice{
			Address: address,
			Name:    displayName(address, props),
		})
	}

	slices.SortFunc(devices, func(a, b BondedDevice) int {
		return strings.Compare(a.Address, b.Address)
	})
	return Available(devices)
}

// belongsTo reports whether a device object hangs off the given adapter.
func belongsTo(path dbus.ObjectPath, props map[string]dbus.Variant, adapterPath dbus.ObjectPath) bool {
	if v, ok := props["Adapter"]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok {
			return p == adapterPath
		}
	}
	return strings.HasPrefix(string(path), string(adapterPath)+"/")
}

// displayName prefers a user-set alias over the remote name. BlueZ fills
// Alias with the dashed address when nothing better is known; that default
// is treated as no alias.
func displayName(address string, props map[string]dbus.Variant) string {
	alias := stringProperty(props, "Alias")
	if alias != "" && alias != strings.ReplaceAll(address, ":", "-") {
		return alias
	}
	return stringProperty(props, "Name")
}

// relevantSignal filters bus signals down to the ones that can change the
// bonded set or the adapter's availability.
func relevantSignal(sig *dbus.Signal) bool {
	if sig == nil {
		return false
	}
	switch sig.Name {
	case propertiesChanged:
		if len(sig.Body) < 2 {
			return false
		}
		iface, _ := sig.Body[0].(string)
		watched := map[string][]string{
			adapterInterface: {"Powered"},
			deviceInterface:  {"Paired", "Bonded", "Name", "Alias"},
		}[iface]
		if watched == nil {
			return false
		}
		if changed, ok := sig.Body[1].(map[string]dbus.Variant); ok {
			for _, key := range watched {
				if _, hit := changed[key]; hit {
					return true
				}
			}
		}
		if len(sig.Body) > 2 {
			if invalidated, ok := sig.Body[2].([]string); ok {
				for _, key := range invalidated {
					if slices.Contains(watched, key) {
						return true
					}
				}
			}
		}
		return false

	case interfacesAdded:
		if len(sig.Body) < 2 {
			return false
		}
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		_, dev := ifaces[deviceInterface]
		_, adp := ifaces[adapterInterface]
		return dev || adp

	case interfacesRemoved:
		if len(sig.Body) < 2 {
			return false
		}
		ifaces, _ := sig.Body[1].([]string)
		return slices.Contains(ifaces, deviceInterface) || slices.Contains(ifaces, adapterInterface)
	}
	return false
}

// classifyError maps bus failures onto probe statuses.
func classifyError(err error) Probe {
	name := ""
	var value dbus.Error
	var ptr *dbus.Error
	switch {
	case errors.As(err, &value):
		name = value.Name
	case errors.As(err, &ptr) && ptr != nil:
		name = ptr.Name
	}
	if slices.Contains(permissionErrorNames, name) {
		return Denied(err)
	}
	return Unavailable(err)
}

func boolProperty(props map[string]dbus.Variant, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

func stringProperty(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}
