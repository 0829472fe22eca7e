package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CodesIssued       prometheus.Counter
	Verifications     *prometheus.CounterVec
	CooldownHits      prometheus.Counter
	DeliveryFailures  prometheus.Counter
	GatewayRejections *prometheus.CounterVec
	StoreLatency      prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CodesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "otpguard_codes_issued_total",
			Help: "Total number of one-time passcodes issued",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "otpguard_verifications_total",
			Help: "Total verification attempts by outcome",
		}, []string{"outcome"}),
		CooldownHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "otpguard_cooldown_hits_total",
			Help: "Total issuance requests denied by the per-identity cooldown",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "otpguard_delivery_failures_total",
			Help: "Total passcode delivery failures (issuance rolled back)",
		}),
		GatewayRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "otpguard_gateway_rejections_total",
			Help: "Total requests rejected by the API gateway by tier",
		}, []string{"tier"}),
		StoreLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "otpguard_store_op_duration_ms",
			Help:    "Latency of record store operations in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}),
	}
}

// RecordVerification increments the verification counter for an outcome label.
func (m *Metrics) RecordVerification(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

// RecordGatewayRejection increments the gateway rejection counter for a tier.
func (m *Metrics) RecordGatewayRejection(tier string) {
	m.GatewayRejections.WithLabelValues(tier).Inc()
}
