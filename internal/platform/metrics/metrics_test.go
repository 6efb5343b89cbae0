package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementConversion("neos", OutcomeOK)
	m.IncrementConversion("neos", OutcomeOK)
	m.IncrementFieldRejection("email")
	m.IncrementHookFailure("category")
	m.IncrementFlatWrite(true)
	m.IncrementFlatWrite(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Conversions.WithLabelValues("neos", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldRejections.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HookFailures.WithLabelValues("category")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlatWrites.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlatWrites.WithLabelValues("error")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementConversion("neos", OutcomeRejected)
		m.IncrementFieldRejection("pin")
		m.IncrementHookFailure("annotate")
		m.IncrementFlatWrite(true)
	})
}
