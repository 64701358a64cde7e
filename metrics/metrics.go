// Package metrics provides Prometheus instrumentation of the learning pipeline.
//
// Metrics exposed:
//   - lfd_stage_seconds: Histogram of pipeline stage durations by stage
//   - lfd_errors_total: Counter of errors by stage and reason
//   - lfd_demonstrations: Gauge of demonstrations used by the last run
//   - lfd_gmm_components: Gauge of the number of GMM components selected by the last run
//   - lfd_dmp_basis_functions: Gauge of the number of DMP basis functions of the last run
//   - lfd_dmp_error: Gauge of the DMP reproduction error of the last run
//   - lfd_gmcc: Gauge of the last symmetric GMCC score
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages
const (
	StageLoad     = "load"
	StageAlign    = "align"
	StageEncode   = "encode"
	StageRegress  = "regress"
	StageDMP      = "dmp"
	StageValidate = "validate"
)

// Metrics holds all Prometheus metrics of the pipeline.
type Metrics struct {
	StageSeconds *prometheus.HistogramVec
	ErrorsTotal  *prometheus.CounterVec
	Demos        prometheus.Gauge
	Components   prometheus.Gauge
	BasisFuncs   prometheus.Gauge
	DMPError     prometheus.Gauge
	GMCC         prometheus.Gauge
}

// New creates all metrics and registers them with reg.
// If reg is nil metrics are registered with the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		StageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lfd_stage_seconds",
			Help:    "Time spent in a pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lfd_errors_total",
			Help: "Total number of errors by stage and reason",
		}, []string{"stage", "reason"}),

		Demos: f.NewGauge(prometheus.GaugeOpts{
			Name: "lfd_demonstrations",
			Help: "Number of demonstrations used by the last run",
		}),

		Components: f.NewGauge(prometheus.GaugeOpts{
			Name: "lfd_gmm_components",
			Help: "Number of GMM components selected by the last run",
		}),

		BasisFuncs: f.NewGauge(prometheus.GaugeOpts{
			Name: "lfd_dmp_basis_functions",
			Help: "Number of DMP basis functions selected by the last run",
		}),

		DMPError: f.NewGauge(prometheus.GaugeOpts{
			Name: "lfd_dmp_error",
			Help: "DMP reproduction error of the last run",
		}),

		GMCC: f.NewGauge(prometheus.GaugeOpts{
			Name: "lfd_gmcc",
			Help: "Last symmetric GMCC score",
		}),
	}
}

// RecordStage records the time spent in stage.
func (m *Metrics) RecordStage(stage string, seconds float64) {
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(stage, reason string) {
	m.ErrorsTotal.WithLabelValues(stage, reason).Inc()
}

// SetDemos sets the number of demonstrations.
func (m *Metrics) SetDemos(n int) {
	m.Demos.Set(float64(n))
}

// SetComponents sets the number of GMM components.
func (m *Metrics) SetComponents(k int) {
	m.Components.Set(float64(k))
}

// SetDMP sets the DMP basis function count and reproduction error.
func (m *Metrics) SetDMP(nrfs int, err float64) {
	m.BasisFuncs.Set(float64(nrfs))
	m.DMPError.Set(err)
}

// SetGMCC sets the last GMCC score.
func (m *Metrics) SetGMCC(score float64) {
	m.GMCC.Set(score)
}
