// Package metrics exposes Prometheus instruments for the application pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for intake and payment.
type Metrics struct {
	// Validation rejections by wizard section
	ValidationRejected *prometheus.CounterVec

	// Applications committed for payment
	ApplicationsCommitted prometheus.Counter

	// Payment outcomes: approved, failed
	PaymentOutcome *prometheus.CounterVec

	// Time spent in settlement and approval
	SettlementLatency prometheus.Histogram

	// Abandoned pending applications removed by the cleaner
	AbandonedPurged prometheus.Counter
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ValidationRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "digitalpass_validation_rejected_total",
			Help: "Wizard advances rejected by validation, by section",
		}, []string{"section"}),

		ApplicationsCommitted: f.NewCounter(prometheus.CounterOpts{
			Name: "digitalpass_applications_committed_total",
			Help: "Drafts committed as pending applications",
		}),

		PaymentOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "digitalpass_payment_outcomes_total",
			Help: "Payment authorizations by outcome",
		}, []string{"outcome"}),

		SettlementLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "digitalpass_settlement_duration_seconds",
			Help:    "Duration of settlement including approval",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 2.5, 3, 5, 10},
		}),

		AbandonedPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "digitalpass_abandoned_purged_total",
			Help: "Pending applications removed after the retention period",
		}),
	}
}

// IncValidationRejected records a rejected advance out of section.
func (m *Metrics) IncValidationRejected(section string) {
	if m != nil {
		m.ValidationRejected.WithLabelValues(section).Inc()
	}
}

// IncCommitted records a committed application.
func (m *Metrics) IncCommitted() {
	if m != nil {
		m.ApplicationsCommitted.Inc()
	}
}

// ObservePayment records a settlement outcome and its duration.
func (m *Metrics) ObservePayment(outcome string, d time.Duration) {
	if m != nil {
		m.PaymentOutcome.WithLabelValues(outcome).Inc()
		m.SettlementLatency.Observe(d.Seconds())
	}
}

// AddPurged records applications removed by the cleaner.
func (m *Metrics) AddPurged(n int64) {
	if m != nil && n > 0 {
		m.AbandonedPurged.Add(float64(n))
	}
}
