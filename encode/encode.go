package encode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/milosgajdos/go-lfd/align"
	"github.com/milosgajdos/go-lfd/gmm"
	"github.com/milosgajdos/go-lfd/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrRange is returned when the component search range is invalid
var ErrRange = errors.New("invalid component range")

// Config configures probabilistic encoding
type Config struct {
	// MinK is the smallest number of components searched
	MinK int `yaml:"min_k"`
	// MaxK is the exclusive upper bound of the number of components searched
	MaxK int `yaml:"max_k"`
	// Iterations is the number of train/test splits evaluated per number of components
	Iterations int `yaml:"iterations"`
	// Samples is the number of Monte Carlo samples drawn from each model
	Samples int `yaml:"samples"`
	// Alpha is the significance level of the selection tests
	Alpha float64 `yaml:"alpha"`
	// Test is the statistical test used for selection
	Test Test `yaml:"test"`
	// NoShuffle splits the data in order instead of shuffling it
	NoShuffle bool `yaml:"no_shuffle"`
	// AnyImprovement also selects candidates with a significantly smaller mean
	// score regardless of their standard deviation
	AnyImprovement bool `yaml:"any_improvement"`
	// BIC additionally records Bayesian information criterion scores
	BIC bool `yaml:"bic"`
	// Seed seeds data splits, model initialization and sampling
	Seed uint64 `yaml:"seed"`
	// MaxIter is the maximum number of EM iterations
	MaxIter int `yaml:"max_iter"`
	// Tol is the EM convergence threshold
	Tol float64 `yaml:"tol"`
	// RegCovar is added to covariance diagonals
	RegCovar float64 `yaml:"reg_covar"`
}

// DefaultConfig returns default encoding configuration
func DefaultConfig() Config {
	g := gmm.DefaultConfig(1)
	return Config{
		MinK:       2,
		MaxK:       10,
		Iterations: 10,
		Samples:    100000,
		Alpha:      0.05,
		Test:       Welch,
		Seed:       1,
		MaxIter:    g.MaxIter,
		Tol:        g.Tol,
		RegCovar:   g.RegCovar,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.MinK < 2 || c.MaxK <= c.MinK {
		return fmt.Errorf("[%d, %d): %w", c.MinK, c.MaxK, ErrRange)
	}

	if c.Iterations < 1 {
		return fmt.Errorf("invalid number of iterations: %d", c.Iterations)
	}

	if c.Samples < 1 {
		return fmt.Errorf("invalid number of samples: %d", c.Samples)
	}

	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("invalid significance level: %v", c.Alpha)
	}

	if c.Test != Welch && c.Test != ZTest {
		return fmt.Errorf("invalid test: %s", c.Test)
	}

	return c.gmmConfig(c.MinK, 0).Validate()
}

func (c Config) gmmConfig(k int, seed uint64) gmm.Config {
	return gmm.Config{
		K:        k,
		MaxIter:  c.MaxIter,
		Tol:      c.Tol,
		RegCovar: c.RegCovar,
		Seed:     seed,
	}
}

// Component holds divergence scores of models with K components
type Component struct {
	// K is the number of components
	K int
	// Scores are Jensen-Shannon distances between train and test models
	Scores []float64
}

// Mean returns the mean score
func (c Component) Mean() float64 {
	return stat.Mean(c.Scores, nil)
}

// Std returns the population standard deviation of the scores
func (c Component) Std() float64 {
	_, std := stat.PopMeanStdDev(c.Scores, nil)
	return std
}

// Result is the result of probabilistic encoding
type Result struct {
	// K is the selected number of components
	K int
	// GMM is the model with K components fitted to all samples
	GMM *gmm.GMM
	// Components holds divergence scores of all searched numbers of components
	Components []Component
	// BIC holds criterion scores of all searched numbers of components.
	// It is only set when Config.BIC is enabled.
	BIC []BICScore
}

// Encode fits a GMM to the pooled time and joint samples of the aligned set.
func Encode(ctx context.Context, set *align.Set, c Config, logger *slog.Logger) (*Result, error) {
	return Fit(ctx, set.Pooled(), c, logger)
}

// Fit selects the number of GMM components for the rows of x and returns the model
// fitted to all rows with the selected number of components.
// For every number of components in [c.MinK, c.MaxK) the rows are split in two halves
// c.Iterations times, a model is fitted to each half and the Jensen-Shannon distance of
// the two models is recorded. The number of components is then chosen with Select.
// It returns error if the configuration is invalid or any model fails to fit.
func Fit(ctx context.Context, x *mat.Dense, c Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	rng := xrand.New(rand.NewSource(c.Seed))

	comps := make([]Component, 0, c.MaxK-c.MinK)
	for k := c.MinK; k < c.MaxK; k++ {
		comp := Component{K: k}
		for i := 0; i < c.Iterations; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			train, test := split(x, !c.NoShuffle, rng)

			p, err := gmm.Fit(train, c.gmmConfig(k, rng.Uint64()))
			if err != nil {
				return nil, fmt.Errorf("failed to fit train model with %d components: %w", k, err)
			}
			q, err := gmm.Fit(test, c.gmmConfig(k, rng.Uint64()))
			if err != nil {
				return nil, fmt.Errorf("failed to fit test model with %d components: %w", k, err)
			}

			js, err := JS(p, q, c.Samples, rng)
			if err != nil {
				return nil, fmt.Errorf("components %d: %w", k, err)
			}
			comp.Scores = append(comp.Scores, js)
		}
		logger.Debug("divergence scores", "k", k, "mean", comp.Mean(), "std", comp.Std())
		comps = append(comps, comp)
	}

	sel := Select
	if c.AnyImprovement {
		sel = SelectAny
	}
	k := sel(comps, c.Test, c.Alpha)
	logger.Info("selected number of components", "k", k, "test", c.Test)

	g, err := gmm.Fit(x, c.gmmConfig(k, c.Seed))
	if err != nil {
		return nil, fmt.Errorf("failed to fit model with %d components: %w", k, err)
	}

	res := &Result{K: k, GMM: g, Components: comps}
	if c.BIC {
		if res.BIC, err = BIC(ctx, x, c); err != nil {
			return nil, fmt.Errorf("bic: %w", err)
		}
	}

	return res, nil
}

// Select returns the number of components with the best divergence scores.
// The candidate with the smallest mean score is the initial best. Every other candidate,
// in order, becomes the best if its mean is not significantly greater than the best one
// and its standard deviation is smaller.
// It panics if comps is empty.
func Select(comps []Component, test Test, alpha float64) int {
	return selectK(comps, test, alpha, false)
}

// SelectAny works like Select but a candidate that is not significantly worse also
// becomes the best if its mean is significantly smaller, whatever its standard deviation.
func SelectAny(comps []Component, test Test, alpha float64) int {
	return selectK(comps, test, alpha, true)
}

func selectK(comps []Component, test Test, alpha float64, anyImprovement bool) int {
	best := 0
	for i, c := range comps {
		if c.Mean() < comps[best].Mean() {
			best = i
		}
	}

	first := best
	for i, c := range comps {
		if i == first {
			continue
		}

		if test.Greater(c.Scores, comps[best].Scores) < alpha {
			continue
		}

		if c.Std() < comps[best].Std() {
			best = i
			continue
		}

		if anyImprovement && test.Greater(comps[best].Scores, c.Scores) < alpha {
			best = i
		}
	}

	return comps[best].K
}

// split splits rows of x in a train set and a test set holding the larger half.
func split(x *mat.Dense, shuffle bool, src xrand.Source) (*mat.Dense, *mat.Dense) {
	n, d := x.Dims()
	nTest := int(math.Ceil(float64(n) / 2))

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if shuffle {
		idx = rand.Perm(n, src)
	}

	test := mat.NewDense(nTest, d, nil)
	train := mat.NewDense(n-nTest, d, nil)
	for i, k := range idx {
		if i < nTest {
			test.SetRow(i, x.RawRowView(k))
			continue
		}
		train.SetRow(i-nTest, x.RawRowView(k))
	}

	return train, test
}

// BICScore holds Bayesian information criterion statistics of models with K components
type BICScore struct {
	// K is the number of components
	K int
	// Mean is the mean criterion value
	Mean float64
	// Std is the population standard deviation of the criterion values
	Std float64
}

// BIC fits c.Iterations models to all rows of x for every number of components in
// [c.MinK, c.MaxK) and returns criterion statistics per number of components.
func BIC(ctx context.Context, x *mat.Dense, c Config) ([]BICScore, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	rng := xrand.New(rand.NewSource(c.Seed))

	scores := make([]BICScore, 0, c.MaxK-c.MinK)
	for k := c.MinK; k < c.MaxK; k++ {
		vals := make([]float64, c.Iterations)
		for i := range vals {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			g, err := gmm.Fit(x, c.gmmConfig(k, rng.Uint64()))
			if err != nil {
				return nil, fmt.Errorf("failed to fit model with %d components: %w", k, err)
			}
			if vals[i], err = g.BIC(x); err != nil {
				return nil, err
			}
		}
		mean, std := stat.PopMeanStdDev(vals, nil)
		scores = append(scores, BICScore{K: k, Mean: mean, Std: std})
	}

	return scores, nil
}
