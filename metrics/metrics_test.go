package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	assert := assert.New(t)

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordStage(StageAlign, 0.5)
	m.RecordStage(StageAlign, 1.5)
	m.RecordStage(StageEncode, 2)
	assert.Equal(2, testutil.CollectAndCount(m.StageSeconds))

	m.RecordError(StageLoad, "missing")
	m.RecordError(StageLoad, "missing")
	assert.Equal(2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(StageLoad, "missing")))

	m.SetDemos(3)
	m.SetComponents(4)
	m.SetDMP(120, 0.25)
	m.SetGMCC(0.99)
	assert.Equal(3.0, testutil.ToFloat64(m.Demos))
	assert.Equal(4.0, testutil.ToFloat64(m.Components))
	assert.Equal(120.0, testutil.ToFloat64(m.BasisFuncs))
	assert.Equal(0.25, testutil.ToFloat64(m.DMPError))
	assert.Equal(0.99, testutil.ToFloat64(m.GMCC))

	// a second registration of the same metrics fails
	assert.Panics(func() { New(reg) })
}
