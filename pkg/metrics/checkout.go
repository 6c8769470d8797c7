package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout outcomes by payment method.
type CheckoutMetrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_outcomes_total",
		Help:      "Checkout attempts by payment method and result.",
	}, []string{"method", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_duration_seconds",
		Help:      "Duration of checkout attempts in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	reg.MustRegister(outcomes, duration)
	return &CheckoutMetrics{outcomes: outcomes, duration: duration}
}

// Observe records one attempt. An empty result means success.
func (c *CheckoutMetrics) Observe(method, result string, elapsed time.Duration) {
	if c == nil || c.outcomes == nil {
		return
	}
	if method == "" {
		method = "unresolved"
	}
	if result == "" {
		result = "success"
	}
	c.outcomes.WithLabelValues(method, strings.ToLower(result)).Inc()
	c.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
