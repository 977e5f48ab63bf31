package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	reg := NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOperation("hold", "ok")
	m.ObserveOperation("hold", "ok")
	m.ObserveCallback("already_processed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.operations.WithLabelValues("hold", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.callbacks.WithLabelValues("already_processed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("create", "ok")
		m.ObserveCallback("created")
	})
}
