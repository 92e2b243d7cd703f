package sources

import (
	"testing"

	"github.com/nerrad567/gray-logic-notify/internal/bluetooth"
	"github.com/nerrad567/gray-logic-notify/internal/device"
)

func stored(address, name string, enabled bool) device.Device {
	return device.Device{Address: address, Name: name, Enabled: enabled}
}

func TestComputePlan(t *testing.T) {
	wired := stored(device.WiredAddress, device.DefaultWiredName, true)

	tests := []struct {
		name       string
		existing   []device.Device
		bonded     []bluetooth.BondedDevice
		wantInsert []device.Device
		wantRename []device.Device
		wantDelete []string
	}{
		{
			name:     "nothing to do",
			existing: []device.Device{wired},
			bonded:   []bluetooth.BondedDevice{},
		},
		{
			name:     "insert enabled with address fallback",
			existing: []device.Device{wired},
			bonded: []bluetooth.BondedDevice{
				{Address: "BB:2", Name: "Headset"},
				{Address: "AA:1", Name: "  "},
			},
			wantInsert: []device.Device{
				{Address: "AA:1", Name: "AA:1", Enabled: true},
				{Address: "BB:2", Name: "Headset", Enabled: true},
			},
		},
		{
			name:       "delete unbonded but never wired",
			existing:   []device.Device{wired, stored("BB:2", "Headset", false), stored("AA:1", "Phone", true)},
			bonded:     []bluetooth.BondedDevice{},
			wantDelete: []string{"AA:1", "BB:2"},
		},
		{
			name:       "rename carries no enabled flag",
			existing:   []device.Device{wired, stored("AA:1", "Old", false)},
			bonded:     []bluetooth.BondedDevice{{Address: "AA:1", Name: "New"}},
			wantRename: []device.Device{{Address: "AA:1", Name: "New"}},
		},
		{
			name:     "matching name is not renamed",
			existing: []device.Device{stored("AA:1", "AA:1", true)},
			bonded:   []bluetooth.BondedDevice{{Address: "AA:1"}},
		},
		{
			name:     "duplicate snapshot entries keep the last",
			existing: []device.Device{wired},
			bonded: []bluetooth.BondedDevice{
				{Address: "AA:1", Name: "First"},
				{Address: "AA:1", Name: "Second"},
			},
			wantInsert: []device.Device{{Address: "AA:1", Name: "Second", Enabled: true}},
		},
		{
			name:     "wired address in snapshot is ignored",
			existing: []device.Device{wired},
			bonded:   []bluetooth.BondedDevice{{Address: device.WiredAddress, Name: "Impostor"}},
		},
		{
			name:       "missing wired is not inserted by the plan",
			existing:   []device.Device{stored("AA:1", "Phone", true)},
			bonded:     nil,
			wantDelete: []string{"AA:1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePlan(tt.existing, tt.bonded)
			assertDevices(t, "Insert", got.Insert, tt.wantInsert)
			assertDevices(t, "Rename", got.Rename, tt.wantRename)
			if len(got.Delete) != len(tt.wantDelete) {
				t.Fatalf("Delete = %v, want %v", got.Delete, tt.wantDelete)
			}
			for i := range tt.wantDelete {
				if got.Delete[i] != tt.wantDelete[i] {
					t.Errorf("Delete = %v, want %v", got.Delete, tt.wantDelete)
				}
			}
		})
	}
}

func TestComputePlan_Deterministic(t *testing.T) {
	bonded := []bluetooth.BondedDevice{
		{Address: "CC:3", Name: "c"}, {Address: "AA:1", Name: "a"}, {Address: "BB:2", Name: "b"},
	}
	first := ComputePlan(nil, bonded)
	for range 20 {
		again := ComputePlan(nil, bonded)
		assertDevices(t, "Insert", again.Insert, first.Insert)
	}
	if first.Insert[0].Address != "AA:1" || first.Insert[2].Address != "CC:3" {
		t.Errorf("Insert not sorted by address: %+v", first.Insert)
	}
}

func assertDevices(t *testing.T, field string, got, want []device.Device) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %+v, want %+v", field, got, want)
	}
	for i := range want {
		if got[i].Address != want[i].Address || got[i].Name != want[i].Name || got[i].Enabled != want[i].Enabled {
			t.Errorf("%s[%d] = %+v, want %+v", field, i, got[i], want[i])
		}
	}
}
