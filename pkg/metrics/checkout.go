package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout outcomes, gateway latency, and invoice renders.
type CheckoutMetrics struct {
	outcomes        *prometheus.CounterVec
	paymentDuration *prometheus.HistogramVec
	invoices        *prometheus.CounterVec
	cartConflicts   prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_outcomes_total",
		Help:      "Checkout runs by terminal state.",
	}, []string{"state"})
	paymentDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_gateway_duration_seconds",
		Help:      "Latency of payment gateway charge calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invoice_renders_total",
		Help:      "Invoice renders by result.",
	}, []string{"result"})
	cartConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_write_conflicts_total",
		Help:      "Cart writes that lost a compare-and-swap race and were retried.",
	})
	reg.MustRegister(outcomes, paymentDuration, invoices, cartConflicts)
	return &CheckoutMetrics{
		outcomes:        outcomes,
		paymentDuration: paymentDuration,
		invoices:        invoices,
		cartConflicts:   cartConflicts,
	}
}

// IncOutcome counts a checkout ending in state.
func (m *CheckoutMetrics) IncOutcome(state string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(state)).Inc()
}

// ObservePayment records how long a gateway call took.
func (m *CheckoutMetrics) ObservePayment(status string, duration time.Duration) {
	if m == nil || m.paymentDuration == nil {
		return
	}
	m.paymentDuration.WithLabelValues(normalizeLabel(status)).Observe(duration.Seconds())
}

// IncInvoice counts an invoice render with result "ok" or "error".
func (m *CheckoutMetrics) IncInvoice(result string) {
	if m == nil || m.invoices == nil {
		return
	}
	m.invoices.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncCartConflict counts a lost cart compare-and-swap.
func (m *CheckoutMetrics) IncCartConflict() {
	if m == nil || m.cartConflicts == nil {
		return
	}
	m.cartConflicts.Inc()
}
