// Package influxdb records graynotify telemetry in InfluxDB v2.
//
// It wraps influxdb-client-go with a non-blocking, batched write API and
// writes two measurements:
//
//	source_sync     one point per reconciliation run (tag: outcome)
//	source_counts   total and enabled source counts on every list change
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteSync(influxdb.SyncSample{Outcome: "applied", Inserted: 1})
package influxdb
