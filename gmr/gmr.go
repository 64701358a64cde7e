package gmr

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-lfd/align"
	"github.com/milosgajdos/go-lfd/estimate"
	"github.com/milosgajdos/go-lfd/gmm"
	"github.com/milosgajdos/go-lfd/trajectory"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// component is a GMM component conditioned on its first dimension
type component struct {
	// logW is the log of the component weight
	logW float64
	// time is the marginal distribution of the first dimension
	time distuv.Normal
	// mu is the mean of the remaining dimensions
	mu []float64
	// gain maps time deviation to the conditional mean shift
	gain []float64
	// cov is the conditional covariance of the remaining dimensions
	cov *mat.SymDense
}

// Regressor computes the Gaussian mixture regression of a GMM conditioned on its
// first dimension, which is the time.
type Regressor struct {
	comps []component
	dim   int
}

// New creates new regressor of g and returns it.
// It returns error if g models fewer than 2 dimensions or the time variance of any
// component is not positive.
func New(g *gmm.GMM) (*Regressor, error) {
	d := g.Dim()
	if d < 2 {
		return nil, fmt.Errorf("invalid model dimension: %d", d)
	}

	w := g.Weights()
	comps := make([]component, g.K())
	for k := range comps {
		mean := g.Mean(k)
		cov := g.Cov(k)

		stt := cov.At(0, 0)
		if stt <= 0 {
			return nil, fmt.Errorf("invalid time variance of component %d: %v", k, stt)
		}

		gain := make([]float64, d-1)
		for i := range gain {
			gain[i] = cov.At(i+1, 0) / stt
		}

		// Σyy - Σyt Σtt⁻¹ Σty
		cc := mat.NewSymDense(d-1, nil)
		for i := 0; i < d-1; i++ {
			for j := i; j < d-1; j++ {
				cc.SetSym(i, j, cov.At(i+1, j+1)-gain[i]*cov.At(0, j+1))
			}
		}

		comps[k] = component{
			logW: math.Log(w[k]),
			time: distuv.Normal{Mu: mean[0], Sigma: math.Sqrt(stt)},
			mu:   mean[1:],
			gain: gain,
			cov:  cc,
		}
	}

	return &Regressor{comps: comps, dim: d - 1}, nil
}

// Dim returns the dimension of the regressed values
func (r *Regressor) Dim() int {
	return r.dim
}

// responsibilities returns normalized component responsibilities for time t.
func (r *Regressor) responsibilities(t float64) []float64 {
	h := make([]float64, len(r.comps))
	for k, c := range r.comps {
		h[k] = c.logW + c.time.LogProb(t)
	}

	norm := floats.LogSumExp(h)
	for k := range h {
		h[k] = math.Exp(h[k] - norm)
	}

	return h
}

// Mean returns the expected value at time t.
func (r *Regressor) Mean(t float64) []float64 {
	h := r.responsibilities(t)

	mean := make([]float64, r.dim)
	for k, c := range r.comps {
		floats.AddScaled(mean, h[k], r.condMean(c, t))
	}

	return mean
}

func (r *Regressor) condMean(c component, t float64) []float64 {
	m := append([]float64(nil), c.mu...)
	floats.AddScaled(m, t-c.time.Mu, c.gain)

	return m
}

// Condition returns the conditional mean and covariance at time t.
func (r *Regressor) Condition(t float64) (*estimate.Base, error) {
	h := r.responsibilities(t)

	mean := make([]float64, r.dim)
	// second moment of the mixture
	moment := mat.NewSymDense(r.dim, nil)
	for k, c := range r.comps {
		m := r.condMean(c, t)
		floats.AddScaled(mean, h[k], m)

		moment.AddSym(moment, scaled(c.cov, h[k]))
		moment.SymRankOne(moment, h[k], mat.NewVecDense(r.dim, m))
	}

	cov := mat.NewSymDense(r.dim, nil)
	cov.SymRankOne(moment, -1, mat.NewVecDense(r.dim, mean))

	return estimate.NewBase(t, mat.NewVecDense(r.dim, mean), cov)
}

func scaled(s *mat.SymDense, f float64) *mat.SymDense {
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.ScaleSym(f, s)

	return out
}

// Predict returns the regression trajectory evaluated at timestamps t.
func (r *Regressor) Predict(t []float64) (*trajectory.Timed, error) {
	joints := mat.NewDense(len(t), r.dim, nil)
	for i, v := range t {
		joints.SetRow(i, r.Mean(v))
	}

	return trajectory.New(t, joints, nil)
}

// Regress returns the regression trajectory of g evaluated at the timestamps of set.
// It returns error if g does not model time followed by the joints of set.
func Regress(set *align.Set, g *gmm.GMM) (*trajectory.Timed, error) {
	if g.Dim() != set.Dof()+1 {
		return nil, fmt.Errorf("invalid model dimension %d for %d joints: %w", g.Dim(), set.Dof(), gmm.ErrDims)
	}

	r, err := New(g)
	if err != nil {
		return nil, err
	}

	return r.Predict(set.Timestamps())
}
