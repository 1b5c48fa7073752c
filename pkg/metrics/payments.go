package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records reconciliation-engine outcomes.
type PaymentMetrics struct {
	transitions       *prometheus.CounterVec
	staleTransitions  prometheus.Counter
	webhookDuplicates prometheus.Counter
	gatewayRequests   *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Applied payment status transitions.",
	}, []string{"from", "to"})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_stale_transitions_total",
		Help: "Transitions discarded because the order had already moved on.",
	})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_duplicates_total",
		Help: "Webhook deliveries short-circuited by the idempotency guard.",
	})
	gateway := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Payment gateway calls by operation and outcome.",
	}, []string{"op", "outcome"})
	reg.MustRegister(transitions, stale, duplicates, gateway)
	return &PaymentMetrics{
		transitions:       transitions,
		staleTransitions:  stale,
		webhookDuplicates: duplicates,
		gatewayRequests:   gateway,
	}
}

// ObserveTransition records an applied payment status transition.
func (m *PaymentMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// IncStale records a discarded stale transition.
func (m *PaymentMetrics) IncStale() {
	if m == nil || m.staleTransitions == nil {
		return
	}
	m.staleTransitions.Inc()
}

// IncWebhookDuplicate records a deduplicated webhook delivery.
func (m *PaymentMetrics) IncWebhookDuplicate() {
	if m == nil || m.webhookDuplicates == nil {
		return
	}
	m.webhookDuplicates.Inc()
}

// ObserveGatewayRequest records a gateway call outcome.
func (m *PaymentMetrics) ObserveGatewayRequest(op, outcome string) {
	if m == nil || m.gatewayRequests == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(op, outcome).Inc()
}
