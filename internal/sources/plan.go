package sources

import (
	"cmp"
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-notify/internal/bluetooth"
	"github.com/nerrad567/gray-logic-notify/internal/device"
)

// ComputePlan returns the mutations that make existing match the bonded
// snapshot.
//
//   - Delete: stored Bluetooth sources that are no longer bonded.
//   - Insert: bonded devices not yet stored, enabled, named by the adapter
//     or by their address when the adapter reports a blank name.
//   - Rename: devices present on both sides whose name differs.
//
// The wired source is never deleted and a bonded entry using its address is
// ignored. When the snapshot repeats an address, the last entry wins.
// Enabled is never part of a rename. Each list is sorted by address.
func ComputePlan(existing []device.Device, bonded []bluetooth.BondedDevice) device.Changes {
	snapshot := make(map[string]string, len(bonded))
	for _, b := range bonded {
		if b.Address == device.WiredAddress {
			continue
		}
		name := b.Name
		if strings.TrimSpace(name) == "" {
			name = b.Address
		}
		snapshot[b.Address] = name
	}

	stored := make(map[string]device.Device, len(existing))
	for _, d := range existing {
		stored[d.Address] = d
	}

	var changes device.Changes
	for _, d := range existing {
		if d.IsWired() {
			continue
		}
		name, bondedNow := snapshot[d.Address]
		switch {
		case !bondedNow:
			changes.Delete = append(changes.Delete, d.Address)
		case name != d.Name:
			changes.Rename = append(changes.Rename, device.Device{Address: d.Address, Name: name})
		}
	}
	for address, name := range snapshot {
		if _, ok := stored[address]; ok {
			continue
		}
		changes.Insert = append(changes.Insert, device.Device{Address: address, Name: name, Enabled: true})
	}

	byAddress := func(a, b device.Device) int { return cmp.Compare(a.Address, b.Address) }
	slices.SortFunc(changes.Insert, byAddress)
	slices.SortFunc(changes.Rename, byAddress)
	slices.Sort(changes.Delete)
	return changes
}
