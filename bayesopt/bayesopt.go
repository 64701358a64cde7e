// Package bayesopt minimizes black-box objectives over bounded integer boxes
// with Gaussian process Bayesian optimization and expected improvement acquisition.
package bayesopt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/milosgajdos/go-lfd/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrSpace is returned when the search space is invalid
var ErrSpace = errors.New("invalid search space")

// Dim is an inclusive integer interval
type Dim struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Space is a box of integer intervals
type Space []Dim

// Validate validates the search space
func (s Space) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty space: %w", ErrSpace)
	}

	for i, d := range s {
		if d.Max < d.Min {
			return fmt.Errorf("dimension %d [%d, %d]: %w", i, d.Min, d.Max, ErrSpace)
		}
	}

	return nil
}

// normalize maps x into the unit box.
func (s Space) normalize(x []int) []float64 {
	u := make([]float64, len(x))
	for i, d := range s {
		if span := d.Max - d.Min; span > 0 {
			u[i] = float64(x[i]-d.Min) / float64(span)
		}
	}

	return u
}

// draw returns uniformly random point of the space.
func (s Space) draw(rng *xrand.Rand) []int {
	x := make([]int, len(s))
	for i, d := range s {
		x[i] = d.Min + rng.Intn(d.Max-d.Min+1)
	}

	return x
}

// Objective is a function minimized by Minimize
type Objective func(x []int) (float64, error)

// Config configures the optimizer
type Config struct {
	// Calls is the total number of objective evaluations
	Calls int `yaml:"calls"`
	// InitPoints is the number of random evaluations before the surrogate model is used
	InitPoints int `yaml:"init_points"`
	// Candidates is the number of random points the acquisition function is evaluated at
	Candidates int `yaml:"candidates"`
	// Xi is the exploration margin of expected improvement
	Xi float64 `yaml:"xi"`
	// Repeats stops the search once the same point is proposed Repeats times in a row.
	// Zero disables early stopping.
	Repeats int `yaml:"repeats"`
	// Seed seeds the random draws
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns default optimizer configuration
func DefaultConfig() Config {
	return Config{
		Calls:      25,
		InitPoints: 10,
		Candidates: 1000,
		Xi:         0.01,
		Repeats:    0,
		Seed:       1,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.Calls < 1 {
		return fmt.Errorf("invalid number of calls: %d", c.Calls)
	}

	if c.InitPoints < 1 || c.InitPoints > c.Calls {
		return fmt.Errorf("invalid number of initial points: %d", c.InitPoints)
	}

	if c.Candidates < 1 {
		return fmt.Errorf("invalid number of candidates: %d", c.Candidates)
	}

	if c.Xi < 0 {
		return fmt.Errorf("invalid exploration margin: %v", c.Xi)
	}

	if c.Repeats < 0 {
		return fmt.Errorf("invalid number of repeats: %d", c.Repeats)
	}

	return nil
}

// Result is the outcome of minimization
type Result struct {
	// X is the best point found
	X []int
	// F is the objective value at X
	F float64
	// Xs are all evaluated points in evaluation order
	Xs [][]int
	// Fs are the objective values at Xs
	Fs []float64
}

func (r *Result) add(x []int, f float64) {
	r.Xs = append(r.Xs, x)
	r.Fs = append(r.Fs, f)
	if len(r.X) == 0 || f < r.F {
		r.X, r.F = x, f
	}
}

// Minimize minimizes f over space s.
// The first c.InitPoints evaluations are drawn at random, the rest maximize expected
// improvement of a Gaussian process fitted to all previous evaluations.
// Minimize returns the best point found so far together with the error when ctx is
// cancelled after at least one evaluation. Errors returned by f abort the search.
func Minimize(ctx context.Context, f Objective, s Space, c Config, logger *slog.Logger) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	rng := xrand.New(rand.NewSource(c.Seed))
	res := &Result{F: math.Inf(1)}

	repeats := 0
	for i := 0; i < c.Calls; i++ {
		if err := ctx.Err(); err != nil {
			if len(res.Xs) == 0 {
				return nil, err
			}
			return res, err
		}

		x := s.draw(rng)
		if i >= c.InitPoints {
			next, err := propose(res, s, c, rng)
			if err != nil {
				logger.Warn("surrogate model failed, drawing random point", "call", i, "error", err)
			} else {
				x = next
			}
		}

		if n := len(res.Xs); n > 0 && slices.Equal(x, res.Xs[n-1]) {
			repeats++
		} else {
			repeats = 1
		}

		fx, err := f(x)
		if err != nil {
			return nil, fmt.Errorf("evaluate %v: %w", x, err)
		}
		res.add(x, fx)

		logger.Debug("objective evaluated", "call", i, "x", x, "f", fx, "best", res.F)

		if c.Repeats > 0 && repeats >= c.Repeats {
			logger.Debug("search converged", "call", i, "x", x)
			break
		}
	}

	return res, nil
}

// propose returns the candidate point with the largest expected improvement.
func propose(res *Result, s Space, c Config, rng *xrand.Rand) ([]int, error) {
	xs := make([][]float64, len(res.Xs))
	for i, x := range res.Xs {
		xs[i] = s.normalize(x)
	}

	model, err := fit(xs, res.Fs)
	if err != nil {
		return nil, err
	}

	best := floats.Min(res.Fs)

	var next []int
	maxEI := math.Inf(-1)
	for i := 0; i < c.Candidates; i++ {
		x := s.draw(rng)
		mu, sigma := model.predict(s.normalize(x))
		if ei := expectedImprovement(mu, sigma, best, c.Xi); ei > maxEI {
			next, maxEI = x, ei
		}
	}

	return next, nil
}

// expectedImprovement returns the expected improvement over best of a normal
// posterior with mean mu and standard deviation sigma when minimizing.
func expectedImprovement(mu, sigma, best, xi float64) float64 {
	imp := best - mu - xi
	if sigma <= 0 {
		return math.Max(imp, 0)
	}

	z := imp / sigma
	return imp*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}
