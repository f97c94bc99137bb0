package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksIngested *prometheus.CounterVec
	ticksRejected *prometheus.CounterVec
	snapshots     *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	cycleDuration prometheus.Histogram
	queueDepth    prometheus.Gauge
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_ticks_ingested_total",
				Help: "Total number of ticks accepted into symbol windows",
			},
			[]string{"symbol"},
		),
		ticksRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_ticks_rejected_total",
				Help: "Total number of ticks rejected at the window boundary",
			},
			[]string{"reason"},
		),
		snapshots: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_snapshots_total",
				Help: "Total number of aggregate snapshots produced",
			},
			[]string{"symbol"},
		),
		alerts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_alerts_total",
				Help: "Total number of anomaly alerts emitted",
			},
			[]string{"kind"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketpulse_cycle_duration_seconds",
				Help:    "Duration of full aggregation cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_dispatch_queue_depth",
				Help: "Number of items buffered in the dispatch queue",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTickIngested counts one accepted tick.
func (r *Recorder) RecordTickIngested(symbol string) {
	r.ticksIngested.WithLabelValues(symbol).Inc()
}

// RecordTickRejected counts one rejected tick by reason.
func (r *Recorder) RecordTickRejected(reason string) {
	r.ticksRejected.WithLabelValues(reason).Inc()
}

// RecordSnapshot counts one produced snapshot.
func (r *Recorder) RecordSnapshot(symbol string) {
	r.snapshots.WithLabelValues(symbol).Inc()
}

// RecordAlert counts one emitted alert by kind.
func (r *Recorder) RecordAlert(kind string) {
	r.alerts.WithLabelValues(kind).Inc()
}

// RecordCycleDuration observes one full cycle's duration.
func (r *Recorder) RecordCycleDuration(seconds float64) {
	r.cycleDuration.Observe(seconds)
}

// RecordQueueDepth sets the dispatch queue depth gauge.
func (r *Recorder) RecordQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
