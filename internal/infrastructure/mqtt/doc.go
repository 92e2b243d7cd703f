// Package mqtt provides MQTT client connectivity for graynotify.
//
// This package manages:
//   - the broker connection, with auto-reconnect and subscription restore
//   - publishing with QoS validation and a payload size limit
//   - Last Will and Testament (LWT) on the system status topic
//
// Topic layout:
//
//	graynotify/sources/all        retained, every source ordered by name
//	graynotify/sources/enabled    retained, enabled sources only
//	graynotify/sources/sync       last reconciliation report
//	graynotify/command/sync       request a probe-driven resync
//	graynotify/command/toggle     {"address": "..."} inverts enabled
//	graynotify/command/enabled    {"address": "...", "enabled": bool}
//	graynotify/system/status      retained online/offline status (LWT)
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.SourcesEnabled(), payload)
package mqtt
