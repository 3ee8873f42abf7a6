package tracing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons
const (
	dropReasonStopped   = "exporter_stopped"
	dropReasonRetries   = "retries_exhausted"
	dropReasonPermanent = "permanent_error"
	dropReasonBreaker   = "circuit_open"
)

// Metrics holds the Prometheus instruments of the tracing pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	SpansStarted  *prometheus.CounterVec
	SpansEnded    *prometheus.CounterVec
	SpansDropped  *prometheus.CounterVec
	DecodeErrors  prometheus.Counter
	ExportBatches *prometheus.CounterVec
	ExportSpans   prometheus.Counter
	ExportRetries prometheus.Counter
	ExportLatency prometheus.Histogram
	QueueDepth    prometheus.Gauge
}

// NewMetrics registers the tracing instruments with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SpansStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracing_spans_started_total",
				Help: "Total number of spans started",
			},
			[]string{"sampled"},
		),
		SpansEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracing_spans_ended_total",
				Help: "Total number of spans ended",
			},
			[]string{"status"},
		),
		SpansDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracing_spans_dropped_total",
				Help: "Total number of sampled spans that never reached the collector",
			},
			[]string{"reason"},
		),
		DecodeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracing_context_decode_errors_total",
				Help: "Inbound traceparent headers rejected as malformed",
			},
		),
		ExportBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracing_export_batches_total",
				Help: "Span batches handed to the collector, by result",
			},
			[]string{"result"},
		),
		ExportSpans: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracing_export_spans_total",
				Help: "Spans delivered to the collector",
			},
		),
		ExportRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracing_export_retries_total",
				Help: "Export attempts retried after a transient failure",
			},
		),
		ExportLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracing_export_duration_seconds",
				Help:    "Duration of one batch delivery including retries",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracing_export_queue_depth",
				Help: "Spans waiting in the export queue",
			},
		),
	}
}

func (m *Metrics) spanStarted(sampled bool) {
	if m == nil {
		return
	}
	label := "false"
	if sampled {
		label = "true"
	}
	m.SpansStarted.WithLabelValues(label).Inc()
}

func (m *Metrics) spanEnded(code StatusCode) {
	if m == nil {
		return
	}
	m.SpansEnded.WithLabelValues(code.String()).Inc()
}

func (m *Metrics) spanDropped(reason string) {
	m.spansDropped(reason, 1)
}

func (m *Metrics) spansDropped(reason string, n int) {
	if m == nil {
		return
	}
	m.SpansDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) decodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) batchExported(n int, seconds float64) {
	if m == nil {
		return
	}
	m.ExportBatches.WithLabelValues("success").Inc()
	m.ExportSpans.Add(float64(n))
	m.ExportLatency.Observe(seconds)
}

func (m *Metrics) batchFailed(seconds float64) {
	if m == nil {
		return
	}
	m.ExportBatches.WithLabelValues("dropped").Inc()
	m.ExportLatency.Observe(seconds)
}

func (m *Metrics) exportRetried() {
	if m == nil {
		return
	}
	m.ExportRetries.Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
