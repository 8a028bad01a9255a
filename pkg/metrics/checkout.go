package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckoutMetrics records the checkout and reconciliation pipeline.
// A nil *CheckoutMetrics is valid and records nothing.
type CheckoutMetrics struct {
	sessions     *prometheus.CounterVec
	reconciled   *prometheus.CounterVec
	mappings     *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
	providerTime *prometheus.HistogramVec
	outbox       *prometheus.CounterVec
	backlog      prometheus.Gauge
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout session attempts by outcome.",
	}, []string{"outcome"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_reconciled_total",
		Help: "Reconcile calls by result (created, duplicate, race_lost).",
	}, []string{"result"})
	mappings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_line_item_mappings_total",
		Help: "Order items by how their variant was resolved.",
	}, []string{"source"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhook_events_total",
		Help: "Stripe webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
	providerTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_call_duration_seconds",
		Help:    "Duration of payment provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox publish attempts by event type and outcome.",
	}, []string{"event_type", "outcome"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_backlog_events",
		Help: "Undelivered outbox rows that still have attempts left.",
	})
	reg.MustRegister(sessions, reconciled, mappings, webhooks, providerTime, outbox, backlog)
	return &CheckoutMetrics{
		sessions:     sessions,
		reconciled:   reconciled,
		mappings:     mappings,
		webhooks:     webhooks,
		providerTime: providerTime,
		outbox:       outbox,
		backlog:      backlog,
	}
}

// IncCheckoutSession counts a checkout attempt (created, empty_cart, unauthorized, provider_error).
func (m *CheckoutMetrics) IncCheckoutSession(outcome string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncReconciled counts a reconcile call.
func (m *CheckoutMetrics) IncReconciled(result string) {
	if m == nil || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncLineItemMapping counts an order item by mapping source.
func (m *CheckoutMetrics) IncLineItemMapping(source string) {
	if m == nil || m.mappings == nil {
		return
	}
	m.mappings.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncWebhookEvent counts a webhook delivery.
func (m *CheckoutMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveProviderCall records how long a provider operation took.
func (m *CheckoutMetrics) ObserveProviderCall(operation string, duration time.Duration) {
	if m == nil || m.providerTime == nil {
		return
	}
	m.providerTime.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncOutboxPublish counts an outbox publish attempt.
func (m *CheckoutMetrics) IncOutboxPublish(eventType, outcome string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// SetOutboxBacklog reports how many outbox rows are waiting for the relay.
func (m *CheckoutMetrics) SetOutboxBacklog(n int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
