package sources

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graynotify_sync_total",
		Help: "Reconciliation runs by outcome",
	}, []string{"outcome"})

	syncMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graynotify_sync_mutations_total",
		Help: "Source mutations applied by reconciliation, by kind",
	}, []string{"kind"})

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graynotify_sync_duration_seconds",
		Help:    "Duration of reconciliation runs",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	toggleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graynotify_toggle_total",
		Help: "Source enable/disable requests by result",
	}, []string{"result"})
)

func recordSyncMetrics(r Report) {
	syncTotal.WithLabelValues(string(r.Outcome)).Inc()
	syncDuration.Observe(r.Duration.Seconds())
	if r.Inserted > 0 {
		syncMutationsTotal.WithLabelValues("insert").Add(float64(r.Inserted))
	}
	if r.Renamed > 0 {
		syncMutationsTotal.WithLabelValues("rename").Add(float64(r.Renamed))
	}
	if r.Deleted > 0 {
		syncMutationsTotal.WithLabelValues("delete").Add(float64(r.Deleted))
	}
}
