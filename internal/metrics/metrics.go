// Package metrics exposes the bot's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "floorbot"

// Metrics groups every instrument the bot records. A nil *Metrics is valid
// and records nothing, so components can run without observability wired.
type Metrics struct {
	registry *prometheus.Registry

	InboundMessages  *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	QuotesCreated    prometheus.Counter
	SendFailures     prometheus.Counter
	WebhookRejected  *prometheus.CounterVec
	ProcessingErrors prometheus.Counter
	ProcessingTime   prometheus.Histogram
}

// New registers the instruments on a fresh registry along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		InboundMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound WhatsApp messages recorded for processing, by message type. Redeliveries are not counted.",
		}, []string{"type"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Conversation state transitions, by source and target step.",
		}, []string{"from", "to"}),
		QuotesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_created_total",
			Help:      "Quote records created by completed intake passes.",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound messages the provider did not accept.",
		}),
		WebhookRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rejected_total",
			Help:      "Webhook requests rejected before reaching the bus, by reason.",
		}, []string{"reason"}),
		ProcessingErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_errors_total",
			Help:      "Inbound events whose processing was aborted.",
		}),
		ProcessingTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time spent handling one inbound event.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterQueueDepth exposes the current length of the inbound queue.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Inbound messages waiting for a worker.",
	}, func() float64 { return float64(depth()) })
}

func (m *Metrics) Inbound(msgType string) {
	if m == nil {
		return
	}
	m.InboundMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) QuoteCreated() {
	if m == nil {
		return
	}
	m.QuotesCreated.Inc()
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.WebhookRejected.WithLabelValues(reason).Inc()
}

// Processed records one handled event and whether it failed.
func (m *Metrics) Processed(start time.Time, err error) {
	if m == nil {
		return
	}
	m.ProcessingTime.Observe(time.Since(start).Seconds())
	if err != nil {
		m.ProcessingErrors.Inc()
	}
}
