package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObservationsCreated.Inc()
	m.RoiLookups.WithLabelValues("hit").Inc()
	m.RoiLookups.WithLabelValues("hit").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObservationsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoiLookups.WithLabelValues("hit")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "lakewatch_observations_created_total")
	assert.Contains(t, names, "lakewatch_roi_lookups_total")

	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestNewMetricsForTestingIsIndependent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()
	a.ObservationsCreated.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ObservationsCreated))
}
