package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentGatewayMetrics records callback traffic and trust decisions.
type PaymentGatewayMetrics struct {
	deliveries       *prometheus.CounterVec
	redirectOutcomes *prometheus.CounterVec
	verifyFailures   prometheus.Counter
	latency          *prometheus.HistogramVec
}

var (
	paymentGatewayOnce sync.Once
	paymentGatewayReg  *PaymentGatewayMetrics
)

// PaymentGateway returns the lazily-initialised metrics registry for the
// Paymob callback handlers.
func PaymentGateway() *PaymentGatewayMetrics {
	paymentGatewayOnce.Do(func() {
		paymentGatewayReg = &PaymentGatewayMetrics{
			deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spicepay",
				Subsystem: "paymob",
				Name:      "webhook_deliveries_total",
				Help:      "Webhook deliveries segmented by outcome.",
			}, []string{"outcome"}),
			redirectOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spicepay",
				Subsystem: "paymob",
				Name:      "redirect_outcomes_total",
				Help:      "Redirect verifications segmented by rendered outcome.",
			}, []string{"outcome"}),
			verifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "spicepay",
				Subsystem: "paymob",
				Name:      "signature_failures_total",
				Help:      "Inbound messages rejected by HMAC verification.",
			}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "spicepay",
				Subsystem: "paymob",
				Name:      "handler_duration_seconds",
				Help:      "Latency distribution for the callback handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"handler"}),
		}
		prometheus.MustRegister(
			paymentGatewayReg.deliveries,
			paymentGatewayReg.redirectOutcomes,
			paymentGatewayReg.verifyFailures,
			paymentGatewayReg.latency,
		)
	})
	return paymentGatewayReg
}

// ObserveWebhook records one webhook delivery outcome and its handling time.
func (m *PaymentGatewayMetrics) ObserveWebhook(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
	m.latency.WithLabelValues("webhook").Observe(elapsed.Seconds())
}

// ObserveRedirect records one redirect classification and its handling time.
func (m *PaymentGatewayMetrics) ObserveRedirect(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.redirectOutcomes.WithLabelValues(outcome).Inc()
	m.latency.WithLabelValues("redirect").Observe(elapsed.Seconds())
}

// RecordSignatureFailure counts a failed trust decision.
func (m *PaymentGatewayMetrics) RecordSignatureFailure() {
	if m == nil {
		return
	}
	m.verifyFailures.Inc()
}
