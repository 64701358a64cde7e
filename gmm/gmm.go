package gmm

import (
	"errors"
	"fmt"
	"math"

	"github.com/milosgajdos/go-lfd/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

var (
	// ErrDims is returned when data dimensions do not match the model
	ErrDims = errors.New("dimension mismatch")
	// ErrNotPosDef is returned when a component covariance is not positive definite
	ErrNotPosDef = errors.New("covariance not positive definite")
)

// GMM is a Gaussian mixture model with full covariance components.
// GMM is immutable.
type GMM struct {
	// w stores component weights
	w []float64
	// mu stores component means
	mu [][]float64
	// cov stores component covariances
	cov []*mat.SymDense
	// dists stores component distributions
	dists []*distmv.Normal
}

// New creates new GMM and returns it.
// It accepts the following parameters:
//   - w:   component weights; they are normalized to sum to 1
//   - mu:  component means
//   - cov: component covariances
//
// It returns error if the number of weights, means and covariances differ, if any weight is
// negative, if dimensions of means and covariances differ or if any covariance is not positive
// definite.
func New(w []float64, mu [][]float64, cov []mat.Symmetric) (*GMM, error) {
	k := len(w)
	if k == 0 || len(mu) != k || len(cov) != k {
		return nil, fmt.Errorf("invalid number of components: %d weights, %d means, %d covariances",
			len(w), len(mu), len(cov))
	}

	sum := floats.Sum(w)
	if sum <= 0 || floats.Min(w) < 0 {
		return nil, fmt.Errorf("invalid component weights: %v", w)
	}

	d := len(mu[0])
	g := &GMM{
		w:     make([]float64, k),
		mu:    make([][]float64, k),
		cov:   make([]*mat.SymDense, k),
		dists: make([]*distmv.Normal, k),
	}

	for i := 0; i < k; i++ {
		if len(mu[i]) != d || cov[i] == nil || cov[i].SymmetricDim() != d {
			return nil, fmt.Errorf("invalid component %d dimensions: %w", i, ErrDims)
		}

		g.w[i] = w[i] / sum
		g.mu[i] = append([]float64(nil), mu[i]...)
		g.cov[i] = mat.NewSymDense(d, nil)
		g.cov[i].CopySym(cov[i])

		dist, ok := distmv.NewNormal(g.mu[i], g.cov[i], nil)
		if !ok {
			return nil, fmt.Errorf("component %d: %w", i, ErrNotPosDef)
		}
		g.dists[i] = dist
	}

	return g, nil
}

// K returns the number of components
func (g *GMM) K() int {
	return len(g.w)
}

// Dim returns the dimension of the modelled data
func (g *GMM) Dim() int {
	return len(g.mu[0])
}

// Weights returns component weights
func (g *GMM) Weights() []float64 {
	return append([]float64(nil), g.w...)
}

// Mean returns the mean of the k-th component
func (g *GMM) Mean(k int) []float64 {
	return append([]float64(nil), g.mu[k]...)
}

// Cov returns the covariance of the k-th component
func (g *GMM) Cov(k int) *mat.SymDense {
	c := mat.NewSymDense(g.cov[k].SymmetricDim(), nil)
	c.CopySym(g.cov[k])

	return c
}

// componentLogProbs stores log(w_k) + log N(x | mu_k, cov_k) for every component in dst.
func (g *GMM) componentLogProbs(dst, x []float64) {
	for k, dist := range g.dists {
		dst[k] = math.Log(g.w[k]) + dist.LogProb(x)
	}
}

// LogProb returns the log density of x.
// It panics if x dimension does not match the model.
func (g *GMM) LogProb(x []float64) float64 {
	lp := make([]float64, g.K())
	g.componentLogProbs(lp, x)

	return floats.LogSumExp(lp)
}

// ScoreSamples returns log densities of the rows of x.
// It returns error if x column count does not match the model dimension.
func (g *GMM) ScoreSamples(x mat.Matrix) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != g.Dim() {
		return nil, fmt.Errorf("invalid data dimension %d != %d: %w", cols, g.Dim(), ErrDims)
	}

	scores := make([]float64, rows)
	lp := make([]float64, g.K())
	row := make([]float64, cols)
	for i := range scores {
		mat.Row(row, i, x)
		g.componentLogProbs(lp, row)
		scores[i] = floats.LogSumExp(lp)
	}

	return scores, nil
}

// Score returns the mean log density of the rows of x.
func (g *GMM) Score(x mat.Matrix) (float64, error) {
	scores, err := g.ScoreSamples(x)
	if err != nil {
		return 0, err
	}

	return floats.Sum(scores) / float64(len(scores)), nil
}

// Sample draws n samples from the model and returns them in matrix rows.
// Samples are grouped by the component they were drawn from.
func (g *GMM) Sample(n int, src xrand.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	labels, err := rand.RouletteDrawN(g.w, n, src)
	if err != nil {
		return nil, err
	}

	counts := make([]int, g.K())
	for _, l := range labels {
		counts[l]++
	}

	d := g.Dim()
	out := mat.NewDense(n, d, nil)
	row := 0
	for k, cnt := range counts {
		if cnt == 0 {
			continue
		}
		s, err := rand.WithCovN(g.cov[k], cnt, src)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", k, err)
		}
		for c := 0; c < cnt; c++ {
			dst := out.RawRowView(row)
			mat.Col(dst, c, s)
			floats.Add(dst, g.mu[k])
			row++
		}
	}

	return out, nil
}

// NumParams returns the number of free parameters of the model
func (g *GMM) NumParams() int {
	k, d := g.K(), g.Dim()
	return (k - 1) + k*d + k*d*(d+1)/2
}

// BIC returns the Bayesian information criterion of the model on the rows of x.
// Lower is better.
func (g *GMM) BIC(x mat.Matrix) (float64, error) {
	scores, err := g.ScoreSamples(x)
	if err != nil {
		return 0, err
	}

	n := float64(len(scores))

	return -2*floats.Sum(scores) + float64(g.NumParams())*math.Log(n), nil
}

// String implements the Stringer interface.
func (g *GMM) String() string {
	return fmt.Sprintf("GMM{K=%d, Dim=%d, Weights=%v}", g.K(), g.Dim(), g.w)
}
