package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Prometheus gauge/counter set for a Relayer process,
// registered into its own registry the same way HealthLogger builds and
// registers its gauges in system_health_logging.go.
type Metrics struct {
	registry *prometheus.Registry

	MarketsByStatus   *prometheus.GaugeVec
	AttestationsTotal prometheus.Counter
	FinalizationsOK   prometheus.Counter
	FinalizationsFail prometheus.Counter
	SyncErrorsTotal   prometheus.Counter
	SchedulerSkips    *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
}

// NewMetrics builds and registers the Relayer's metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		MarketsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relayer_markets_by_status",
			Help: "Number of known markets in each status",
		}, []string{"status"}),
		AttestationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_attestations_total",
			Help: "Total number of attestations accepted",
		}),
		FinalizationsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_finalizations_total",
			Help: "Total number of markets successfully finalized",
		}),
		FinalizationsFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_finalization_failures_total",
			Help: "Total number of failed finalization attempts",
		}),
		SyncErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_sync_errors_total",
			Help: "Total number of sync operations that failed",
		}),
		SchedulerSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_scheduler_skips_total",
			Help: "Total number of scheduled runs skipped because the previous run was still in progress",
		}, []string{"job"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relayer_finalization_queue_depth",
			Help: "Number of markets currently pending finalization",
		}),
	}

	reg.MustRegister(
		m.MarketsByStatus, m.AttestationsTotal, m.FinalizationsOK,
		m.FinalizationsFail, m.SyncErrorsTotal, m.SchedulerSkips, m.QueueDepth,
	)
	return m
}

// Registry exposes the underlying Prometheus registry for mounting at /metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordMarketStatuses sets the status gauge from a full count snapshot,
// zeroing statuses with no current markets so dashboards don't show stale
// nonzero values.
func (m *Metrics) RecordMarketStatuses(counts map[MarketStatus]int) {
	for s := StatusOpen; s <= StatusCancelled; s++ {
		m.MarketsByStatus.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
