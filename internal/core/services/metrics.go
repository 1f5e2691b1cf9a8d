// Package services provides the trust data state holder and the
// certification workflows that drive it.
package services

// MetricsReporter receives trust data events.
type MetricsReporter interface {
	// RecordCertification records one certification attempt against a domain.
	RecordCertification(domain, kind string, success bool, seconds float64)
	// RecordStoreOperation records a policy store mutation made by the trust data.
	RecordStoreOperation(op string, success bool)
	// SetStoreEntries reports the current policy store size.
	SetStoreEntries(n int)
	// SetAllInitialized reports the all-initialized predicate.
	SetAllInitialized(initialized bool)
}

// NoopMetrics discards all metrics.
type NoopMetrics struct{}

func (NoopMetrics) RecordCertification(string, string, bool, float64) {}
func (NoopMetrics) RecordStoreOperation(string, bool) {}
func (NoopMetrics) SetStoreEntries(int) {}
func (NoopMetrics) SetAllInitialized(bool) {}
