// Package device provides the notification source store for graynotify.
//
// A notification source is either the wired-audio pseudo-device (address
// WiredAddress) or a Bluetooth device the host has paired with. Each source
// carries a user-owned Enabled flag that survives renames and resyncs.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────────┐
//	│                             Manager                                │
//	│   current instance: reactive.Cell[*Store]                          │
//	│   AllDevices / EnabledDevices: reactive.Switch over the cell       │
//	│                                                                    │
//	│        ┌──────────────────┐        ┌──────────────────┐           │
//	│        │      Store       │───────▶│    Repository    │           │
//	│        │   (store.go)     │        │ (repository.go)  │           │
//	│        │ • mutations      │        │ • SQLite queries │           │
//	│        │ • feed republish │        │ • Apply in a tx  │           │
//	│        └──────────────────┘        └──────────────────┘           │
//	└───────────────────────────────────────────────────────────────────┘
//	          │                                    │
//	          ▼                                    ▼
//	  API hub / MQTT relay               notification_devices table
//
// # Key Types
//
//   - Device: one notification source record
//   - Changes: a batch of inserts, renames and deletions applied atomically
//   - Store: a Repository plus the All and Enabled feeds
//   - Manager: owns the single current Store and its lifecycle
//
// # Usage
//
//	mgr, err := device.NewManager(ctx, device.ManagerOptions{
//	    Opener:    openStore,
//	    WiredName: "Wired audio",
//	})
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	store, err := mgr.AwaitCurrent(ctx, 5*time.Second)
//	if err != nil {
//	    return err // ErrStoreUnavailable
//	}
//	enabled, err := store.ToggleEnabled(ctx, "AA:BB:CC:DD:EE:FF")
//
// # Thread Safety
//
// Store and Manager are safe for concurrent use. Values received from feeds
// are shared between subscribers and must not be modified.
package device
