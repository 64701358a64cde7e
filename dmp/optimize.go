package dmp

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/milosgajdos/go-lfd/bayesopt"
)

// penalty replaces non-finite objective values
const penalty = 1e6

// Config configures hyperparameter optimization
type Config struct {
	// Order is the canonical system order
	Order int `yaml:"order"`
	// AlphaZ bounds the alpha z gain
	AlphaZ bayesopt.Dim `yaml:"alpha_z"`
	// NRFs bounds the number of basis functions
	NRFs bayesopt.Dim `yaml:"n_rfs"`
	// PerJoint searches one alpha z gain per joint instead of a shared one
	PerJoint bool `yaml:"per_joint"`
	// Optimizer configures the Bayesian optimizer
	Optimizer bayesopt.Config `yaml:"optimizer"`
}

// DefaultConfig returns default optimization configuration
func DefaultConfig() Config {
	return Config{
		Order:     1,
		AlphaZ:    bayesopt.Dim{Min: 5, Max: 30},
		NRFs:      bayesopt.Dim{Min: 50, Max: 200},
		Optimizer: bayesopt.DefaultConfig(),
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.Order != 0 && c.Order != 1 {
		return fmt.Errorf("canonical order %d: %w", c.Order, ErrParams)
	}

	if c.AlphaZ.Min < 1 || c.AlphaZ.Max < c.AlphaZ.Min {
		return fmt.Errorf("alpha z range [%d, %d]: %w", c.AlphaZ.Min, c.AlphaZ.Max, ErrParams)
	}

	if c.NRFs.Min < 2 || c.NRFs.Max < c.NRFs.Min {
		return fmt.Errorf("basis functions range [%d, %d]: %w", c.NRFs.Min, c.NRFs.Max, ErrParams)
	}

	return c.Optimizer.Validate()
}

// Space returns the search space for dof joints: alpha z gains followed by
// the number of basis functions.
func (c Config) Space(dof int) bayesopt.Space {
	if !c.PerJoint {
		return bayesopt.Space{c.AlphaZ, c.NRFs}
	}

	s := make(bayesopt.Space, dof+1)
	for i := 0; i < dof; i++ {
		s[i] = c.AlphaZ
	}
	s[dof] = c.NRFs

	return s
}

// Params maps point x of the search space to parameters for dof joints.
// It returns error if x does not match the space dimension.
func (c Config) Params(x []int, dof int) (Params, error) {
	n := len(x)
	switch {
	case !c.PerJoint && n == 2:
		return Uniform(c.Order, float64(x[0]), x[1], dof), nil
	case c.PerJoint && n == dof+1:
		a := make([]float64, dof)
		for i := range a {
			a[i] = float64(x[i])
		}
		return Params{Order: c.Order, AlphaZ: a, NRFs: x[dof]}, nil
	}

	return Params{}, fmt.Errorf("search point of dimension %d for %d joints: %w", n, dof, ErrDims)
}

// Optimize searches parameters minimizing the reproduction error of demo and returns
// the model fitted with the best parameters found along with the search result.
// Cancelling ctx stops the search and fits the best parameters found so far.
func Optimize(ctx context.Context, demo *Demo, c Config, logger *slog.Logger) (*Model, *bayesopt.Result, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	dof := demo.Dof()
	objective := func(x []int) (float64, error) {
		p, err := c.Params(x, dof)
		if err != nil {
			return 0, err
		}

		m, err := Fit(demo, p)
		if err != nil {
			return 0, err
		}

		e, err := m.Error()
		if err != nil {
			return 0, err
		}

		if math.IsNaN(e) || math.IsInf(e, 0) {
			logger.Warn("unstable parameters", "alpha_z", p.AlphaZ, "n_rfs", p.NRFs)
			return penalty, nil
		}

		return e, nil
	}

	res, err := bayesopt.Minimize(ctx, objective, c.Space(dof), c.Optimizer, logger)
	if res == nil {
		return nil, nil, err
	}

	if err != nil {
		logger.Warn("search stopped early", "calls", len(res.Xs), "error", err)
	}

	p, perr := c.Params(res.X, dof)
	if perr != nil {
		return nil, nil, perr
	}

	m, ferr := Fit(demo, p)
	if ferr != nil {
		return nil, nil, ferr
	}

	logger.Info("dmp parameters selected", "alpha_z", p.AlphaZ, "n_rfs", p.NRFs, "error", res.F, "calls", len(res.Xs))

	return m, res, err
}
