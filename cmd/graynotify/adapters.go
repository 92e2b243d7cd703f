package main

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/device"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-notify/internal/sources"
)

// recorderSet fans sync reports out to recorders registered after the
// engine was built.
type recorderSet struct {
	mu   sync.RWMutex
	list sources.Recorders
}

func (s *recorderSet) add(r sources.Recorder) {
	s.mu.Lock()
	s.list = append(s.list, r)
	s.mu.Unlock()
}

// RecordSync implements sources.Recorder.
func (s *recorderSet) RecordSync(ctx context.Context, report sources.Report) {
	s.mu.RLock()
	list := s.list
	s.mu.RUnlock()
	list.RecordSync(ctx, report)
}

// influxRecorder writes each report as a source_sync point.
type influxRecorder struct {
	client *influxdb.Client
}

func (r influxRecorder) RecordSync(_ context.Context, report sources.Report) {
	r.client.WriteSync(influxdb.SyncSample{
		Outcome:  string(report.Outcome),
		Inserted: report.Inserted,
		Deleted:  report.Deleted,
		Renamed:  report.Renamed,
		Ignored:  report.Ignored,
		Skipped:  report.Skipped,
		Duration: report.Duration,
		At:       report.At,
	})
}

// storeProvider is the subset of *device.Manager the health check needs.
type storeProvider interface {
	AwaitCurrent(ctx context.Context, timeout time.Duration) (*device.Store, error)
}

// storeHealth reports whether a device store is open.
type storeHealth struct {
	stores  storeProvider
	timeout time.Duration
}

func (h storeHealth) HealthCheck(ctx context.Context) error {
	_, err := h.stores.AwaitCurrent(ctx, h.timeout)
	return err
}
