package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSync   = "source_sync"
	MeasurementCounts = "source_counts"
)

// SyncSample is one reconciliation run.
type SyncSample struct {
	Outcome  string
	Inserted int
	Deleted  int
	Renamed  int
	Ignored  int
	Skipped  bool
	Duration time.Duration
	At       time.Time
}

// WriteSync queues a source_sync point.
func (c *Client) WriteSync(s SyncSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(syncPoint(c.site, s))
}

// WriteCounts queues a source_counts point.
func (c *Client) WriteCounts(total, enabled int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(countsPoint(c.site, total, enabled, at))
}

func syncPoint(site string, s SyncSample) *write.Point {
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(MeasurementSync,
		siteTags(site, map[string]string{"outcome": s.Outcome}),
		map[string]any{
			"inserted":    s.Inserted,
			"deleted":     s.Deleted,
			"renamed":     s.Renamed,
			"ignored":     s.Ignored,
			"skipped":     s.Skipped,
			"duration_ms": float64(s.Duration) / float64(time.Millisecond),
		},
		at,
	)
}

func countsPoint(site string, total, enabled int, at time.Time) *write.Point {
	return write.NewPoint(MeasurementCounts,
		siteTags(site, map[string]string{}),
		map[string]any{
			"total":   total,
			"enabled": enabled,
		},
		at,
	)
}

func siteTags(site string, tags map[string]string) map[string]string {
	if site != "" {
		tags["site"] = site
	}
	return tags
}
