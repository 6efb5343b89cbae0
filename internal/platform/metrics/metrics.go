package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
)

// Metrics holds all Prometheus metrics for the converter.
type Metrics struct {
	Conversions     *prometheus.CounterVec
	FieldRejections *prometheus.CounterVec
	HookFailures    *prometheus.CounterVec
	FlatWrites      *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ilsgate_conversions_total",
			Help: "Customer conversions by partner and outcome",
		}, []string{"partner", "outcome"}), // outcome: ok, invalid, rejected

		FieldRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ilsgate_field_rejections_total",
			Help: "Customer fields rejected or missing, by field",
		}, []string{"field"}),

		HookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ilsgate_hook_failures_total",
			Help: "Note hook failures, timeouts and panics, by hook",
		}, []string{"hook"}),

		FlatWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ilsgate_flat_writes_total",
			Help: "Flat record writes by outcome",
		}, []string{"outcome"}),
	}
}

// IncrementConversion records one finished conversion.
func (m *Metrics) IncrementConversion(partner, outcome string) {
	if m != nil {
		m.Conversions.WithLabelValues(partner, outcome).Inc()
	}
}

// IncrementFieldRejection records one rejected or missing field.
func (m *Metrics) IncrementFieldRejection(field string) {
	if m != nil {
		m.FieldRejections.WithLabelValues(field).Inc()
	}
}

// IncrementHookFailure records a hook call that degraded to no mutation.
func (m *Metrics) IncrementHookFailure(hook string) {
	if m != nil {
		m.HookFailures.WithLabelValues(hook).Inc()
	}
}

// IncrementFlatWrite records a write attempt; ok reports success.
func (m *Metrics) IncrementFlatWrite(ok bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.FlatWrites.WithLabelValues(outcome).Inc()
}
