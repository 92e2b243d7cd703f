// Package bluetooth reports the host's bonded Bluetooth devices.
//
// The reconciliation engine only needs one answer from the Bluetooth stack:
// "which devices has this host paired with, if I am allowed to ask?". That
// answer is three-valued and captured by Probe:
//
//	StatusAvailable           snapshot in Probe.Devices (possibly empty)
//	StatusPermissionDenied    the process may not enumerate devices
//	StatusAdapterUnavailable  no bus, no adapter, or the adapter is powered off
//
// BlueZ implements Prober over the D-Bus system bus and can Watch for
// pairing and power changes. StorageWatcher watches the BlueZ pairing store
// on disk, and Watchers merges both. GroupPermission implements PermissionChecker
// using unix group membership.
package bluetooth
