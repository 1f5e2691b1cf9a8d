// Package metrics provides the Prometheus implementation of the trust data
// metrics reporter and the certifier service request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sufield/certifier/internal/core/services"
)

const namespace = "certifier"

// PrometheusMetrics implements services.MetricsReporter using Prometheus.
type PrometheusMetrics struct {
	certifications  *prometheus.CounterVec
	certifyDuration *prometheus.HistogramVec
	storeOperations *prometheus.CounterVec
	storeEntries    prometheus.Gauge
	allInitialized  prometheus.Gauge
	requestsServed  *prometheus.CounterVec
}

// NewPrometheusMetrics registers the certifier metrics with reg. A nil reg
// uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		certifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certifications_total",
			Help:      "Total number of domain certification attempts",
		}, []string{"domain", "kind", "result"}),

		certifyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "certification_duration_seconds",
			Help:      "Duration of domain certification attempts, retries included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		storeOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_store_operations_total",
			Help:      "Total number of policy store mutations made by the trust data",
		}, []string{"op", "result"}), // op: insert, delete, save

		storeEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_store_entries",
			Help:      "Current number of policy store entries",
		}),

		allInitialized: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "all_initialized",
			Help:      "1 when every required initialization stage has completed",
		}),

		requestsServed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_requests_total",
			Help:      "Total number of certification requests handled by the certifier service",
		}, []string{"domain", "status"}),
	}
}

var _ services.MetricsReporter = (*PrometheusMetrics)(nil)

// RecordCertification records one certification attempt.
func (m *PrometheusMetrics) RecordCertification(domain, kind string, success bool, seconds float64) {
	m.certifications.WithLabelValues(domain, kind, result(success)).Inc()
	m.certifyDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordStoreOperation records a policy store mutation.
func (m *PrometheusMetrics) RecordStoreOperation(op string, success bool) {
	m.storeOperations.WithLabelValues(op, result(success)).Inc()
}

// SetStoreEntries reports the policy store size.
func (m *PrometheusMetrics) SetStoreEntries(n int) {
	m.storeEntries.Set(float64(n))
}

// SetAllInitialized reports the all-initialized predicate.
func (m *PrometheusMetrics) SetAllInitialized(initialized bool) {
	if initialized {
		m.allInitialized.Set(1)
	} else {
		m.allInitialized.Set(0)
	}
}

// RecordRequest records a request handled by the certifier service.
func (m *PrometheusMetrics) RecordRequest(domain, status string) {
	m.requestsServed.WithLabelValues(domain, status).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
