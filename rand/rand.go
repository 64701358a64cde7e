package rand

import (
	"fmt"
	"math"
	"sort"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewSource returns a random source seeded with seed.
func NewSource(seed uint64) xrand.Source {
	return xrand.NewSource(seed)
}

// WithCovN draws n samples from a zero-mean normal distribution with covariance cov.
// Samples are stored in the columns of the returned matrix.
// It returns error if n is not positive or cov can not be factorized.
func WithCovN(cov mat.Symmetric, n int, src xrand.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// regularized mixture covariances may still be close to singular
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("covariance factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	U.Mul(U, mat.NewDiagDense(len(vals), vals))

	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = norm.Rand()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// RouletteDrawN draws n indices into p with probability proportional to the weights in p.
// Weights do not need to be normalized; zero weights are never drawn.
// It returns error if p is empty.
func RouletteDrawN(p []float64, n int, src xrand.Source) ([]int, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)

	unif := distuv.Uniform{Min: 0, Max: 1, Src: src}
	indices := make([]int, n)
	for i := range indices {
		val := unif.Rand() * cdf[len(cdf)-1]
		indices[i] = sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
		if indices[i] == len(cdf) {
			indices[i] = len(cdf) - 1
		}
	}

	return indices, nil
}

// Perm returns a pseudo-random permutation of the integers [0, n).
func Perm(n int, src xrand.Source) []int {
	return xrand.New(src).Perm(n)
}
