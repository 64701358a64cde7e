package gmm

import (
	"errors"
	"fmt"
	"math"

	"github.com/milosgajdos/go-lfd/rand"
	"github.com/milosgajdos/matrix"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Config configures EM fitting
type Config struct {
	// K is the number of components
	K int
	// MaxIter is the maximum number of EM iterations
	MaxIter int
	// Tol is the convergence threshold on the mean log-likelihood change
	Tol float64
	// RegCovar is added to covariance diagonals
	RegCovar float64
	// Seed seeds the initialization
	Seed uint64
}

// DefaultConfig returns default fitting configuration for k components
func DefaultConfig(k int) Config {
	return Config{
		K:        k,
		MaxIter:  100,
		Tol:      1e-3,
		RegCovar: 1e-6,
		Seed:     1,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("invalid number of components: %d", c.K)
	}

	if c.MaxIter < 1 {
		return fmt.Errorf("invalid number of iterations: %d", c.MaxIter)
	}

	if c.Tol < 0 || c.RegCovar < 0 {
		return fmt.Errorf("invalid tolerance %v or covariance regularization %v", c.Tol, c.RegCovar)
	}

	return nil
}

// maxRegRetries bounds how many times regularization is increased tenfold
// when a component covariance loses positive definiteness.
const maxRegRetries = 4

// Fit fits a GMM to the rows of x with the expectation maximization algorithm.
// Components are initialized from a k-means clustering seeded with k-means++.
// It returns error if the configuration is invalid, x has fewer rows than components or
// covariances cannot be kept positive definite.
func Fit(x *mat.Dense, c Config) (*GMM, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	n, d := x.Dims()
	if n < c.K {
		return nil, fmt.Errorf("invalid number of samples %d for %d components", n, c.K)
	}

	src := rand.NewSource(c.Seed)
	labels := kmeans(x, c.K, src)

	reg := c.RegCovar
	var err error
	for try := 0; try <= maxRegRetries; try++ {
		var g *GMM
		if g, err = initFromLabels(x, labels, c.K, reg); err == nil {
			if g, err = em(x, g, c, reg); err == nil {
				return g, nil
			}
		}
		if !errors.Is(err, ErrNotPosDef) {
			return nil, err
		}
		reg = math.Max(reg*10, 1e-6)
	}

	return nil, fmt.Errorf("failed to fit %d components to %d x %d data: %w", c.K, n, d, err)
}

// em runs EM iterations starting from g.
func em(x *mat.Dense, g *GMM, c Config, reg float64) (*GMM, error) {
	n, _ := x.Dims()
	resp := mat.NewDense(n, c.K, nil)

	prev := math.Inf(-1)
	for iter := 0; iter < c.MaxIter; iter++ {
		lb := estep(x, g, resp)

		next, err := mstep(x, resp, reg)
		if err != nil {
			return nil, err
		}
		g = next

		if math.Abs(lb-prev) < c.Tol {
			break
		}
		prev = lb
	}

	return g, nil
}

// estep stores normalized responsibilities in resp and returns the mean log-likelihood.
func estep(x *mat.Dense, g *GMM, resp *mat.Dense) float64 {
	n, _ := x.Dims()

	var ll float64
	for i := 0; i < n; i++ {
		r := resp.RawRowView(i)
		g.componentLogProbs(r, x.RawRowView(i))
		norm := floats.LogSumExp(r)
		for k := range r {
			r[k] = math.Exp(r[k] - norm)
		}
		ll += norm
	}

	return ll / float64(n)
}

// mstep estimates component parameters from responsibilities.
func mstep(x, resp *mat.Dense, reg float64) (*GMM, error) {
	n, d := x.Dims()
	_, k := resp.Dims()

	w := make([]float64, k)
	mu := make([][]float64, k)
	cov := make([]mat.Symmetric, k)

	diff := make([]float64, d)
	for j := 0; j < k; j++ {
		rk := mat.Col(nil, j, resp)
		nk := floats.Sum(rk) + 10*eps
		w[j] = nk / float64(n)

		mu[j] = make([]float64, d)
		for i := 0; i < n; i++ {
			floats.AddScaled(mu[j], rk[i], x.RawRowView(i))
		}
		floats.Scale(1/nk, mu[j])

		s := mat.NewSymDense(d, nil)
		for i := 0; i < n; i++ {
			floats.SubTo(diff, x.RawRowView(i), mu[j])
			s.SymRankOne(s, rk[i]/nk, mat.NewVecDense(d, diff))
		}

		c, err := regularize(s, reg)
		if err != nil {
			return nil, err
		}
		cov[j] = c
	}

	return New(w, mu, cov)
}

// eps is the float64 machine epsilon
const eps = 2.220446049250313e-16

// regularize adds reg to the diagonal of s.
func regularize(s *mat.SymDense, reg float64) (*mat.SymDense, error) {
	d := s.SymmetricDim()
	eye, err := matrix.NewDenseValIdentity(d, reg)
	if err != nil {
		return nil, err
	}

	out := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			out.SetSym(i, j, s.At(i, j)+eye.At(i, j))
		}
	}

	return out, nil
}

// initFromLabels creates a GMM from a hard assignment of x rows to k clusters.
// Clusters with fewer than two members use the diagonal of the data variance.
func initFromLabels(x *mat.Dense, labels []int, k int, reg float64) (*GMM, error) {
	n, d := x.Dims()

	members := make([][]int, k)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	spread, err := diagVariance(x)
	if err != nil {
		return nil, err
	}

	w := make([]float64, k)
	mu := make([][]float64, k)
	cov := make([]mat.Symmetric, k)
	for j, idx := range members {
		w[j] = (float64(len(idx)) + 10*eps) / float64(n)
		mu[j] = make([]float64, d)

		if len(idx) < 2 {
			if len(idx) == 1 {
				copy(mu[j], x.RawRowView(idx[0]))
			}
			if cov[j], err = regularize(spread, reg); err != nil {
				return nil, err
			}
			continue
		}

		// cluster members are stored in columns
		cm := mat.NewDense(d, len(idx), nil)
		for c, i := range idx {
			cm.SetCol(c, x.RawRowView(i))
			floats.Add(mu[j], x.RawRowView(i))
		}
		floats.Scale(1/float64(len(idx)), mu[j])

		s, err := matrix.Cov(cm, "cols")
		if err != nil {
			return nil, fmt.Errorf("failed to calculate cluster covariance: %v", err)
		}
		sym := mat.NewSymDense(d, nil)
		sym.CopySym(s)
		if cov[j], err = regularize(sym, reg); err != nil {
			return nil, err
		}
	}

	return New(w, mu, cov)
}

// diagVariance returns a diagonal matrix of x column population variances.
func diagVariance(x *mat.Dense) (*mat.SymDense, error) {
	n, d := x.Dims()
	if n < 2 {
		return nil, fmt.Errorf("invalid number of samples: %d", n)
	}

	v := mat.NewSymDense(d, nil)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		_, variance := stat.PopMeanVariance(mat.Col(col, j, x), nil)
		v.SetSym(j, j, variance)
	}

	return v, nil
}

// kmeans clusters rows of x into k clusters and returns cluster labels.
// Centers are seeded with k-means++ and refined with Lloyd iterations.
func kmeans(x *mat.Dense, k int, src xrand.Source) []int {
	n, d := x.Dims()

	centers := make([][]float64, 0, k)
	uniform := make([]float64, n)
	for i := range uniform {
		uniform[i] = 1
	}
	first, _ := rand.RouletteDrawN(uniform, 1, src)
	centers = append(centers, append([]float64(nil), x.RawRowView(first[0])...))

	d2 := make([]float64, n)
	for i := range d2 {
		d2[i] = math.Inf(1)
	}
	for len(centers) < k {
		last := centers[len(centers)-1]
		for i := 0; i < n; i++ {
			d2[i] = math.Min(d2[i], sqDist(x.RawRowView(i), last))
		}
		weights := d2
		if floats.Sum(d2) == 0 {
			// all remaining points coincide with centers
			weights = uniform
		}
		next, _ := rand.RouletteDrawN(weights, 1, src)
		centers = append(centers, append([]float64(nil), x.RawRowView(next[0])...))
	}

	labels := make([]int, n)
	for iter := 0; iter < 300; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best, bestDist := 0, math.Inf(1)
			for j, c := range centers {
				if dist := sqDist(x.RawRowView(i), c); dist < bestDist {
					best, bestDist = j, dist
				}
			}
			changed = changed || labels[i] != best
			labels[i] = best
		}
		if iter > 0 && !changed {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for j := range sums {
			sums[j] = make([]float64, d)
		}
		for i, l := range labels {
			counts[l]++
			floats.Add(sums[l], x.RawRowView(i))
		}
		for j := range centers {
			if counts[j] > 0 {
				floats.ScaleTo(centers[j], 1/float64(counts[j]), sums[j])
			}
		}
	}

	return labels
}

func sqDist(a, b []float64) float64 {
	var d float64
	for k := range a {
		diff := a[k] - b[k]
		d += diff * diff
	}

	return d
}
