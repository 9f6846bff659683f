package reconcile

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync outcomes recorded on fieldsync_sync_runs_total.
const (
	outcomeOK      = "ok"
	outcomeOffline = "offline"
	outcomeError   = "error"
)

type metrics struct {
	syncRuns       *prometheus.CounterVec
	written        prometheus.Counter
	flushed        prometheus.Counter
	deleteFailures prometheus.Counter
	pending        prometheus.Gauge
	syncDuration   prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldsync_sync_runs_total",
			Help: "Sync runs by outcome (ok, offline, error).",
		}, []string{"outcome"}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldsync_shipments_written_total",
			Help: "Shipments written by snapshot replaces.",
		}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldsync_outbox_flushed_total",
			Help: "Outbox entries confirmed by the remote service.",
		}),
		deleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldsync_remote_delete_failures_total",
			Help: "Remote deletes that failed and stayed queued.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldsync_outbox_pending",
			Help: "Pending outbox entries after the last operation.",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldsync_sync_duration_seconds",
			Help:    "Duration of SyncFromRemote.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		return m
	}

	m.syncRuns = register(reg, m.syncRuns)
	m.written = register(reg, m.written)
	m.flushed = register(reg, m.flushed)
	m.deleteFailures = register(reg, m.deleteFailures)
	m.pending = register(reg, m.pending)
	m.syncDuration = register(reg, m.syncDuration)
	return m
}

// register adds c to reg, reusing the existing collector when several
// engines share a registry. Any other registration error panics, as with
// prometheus.MustRegister.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	panic(err)
}
