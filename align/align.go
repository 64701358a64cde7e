package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/milosgajdos/go-lfd/matrix"
	"github.com/milosgajdos/go-lfd/trajectory"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDims is returned when demonstrations have inconsistent dimensions
	ErrDims = errors.New("dimension mismatch")
	// ErrEmpty is returned when no demonstrations are given
	ErrEmpty = errors.New("no demonstrations")
)

// Config configures temporal alignment
type Config struct {
	// Freq is the resampling frequency in Hz
	Freq float64 `yaml:"freq"`
	// Window bounds the DTW warping path deviation in samples; 0 disables the bound
	Window int `yaml:"window"`
	// Psi is the number of samples that may be skipped at either series start and end
	Psi int `yaml:"psi"`
	// Metric selects the reference selection distance
	Metric Metric `yaml:"metric"`
}

// DefaultConfig returns default alignment configuration
func DefaultConfig() Config {
	return Config{
		Freq:   100,
		Window: 10,
		Psi:    2,
		Metric: Dependent,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.Freq <= 0 {
		return fmt.Errorf("invalid resampling frequency: %v", c.Freq)
	}

	if c.Window < 0 {
		return fmt.Errorf("invalid DTW window: %d", c.Window)
	}

	if c.Psi < 0 {
		return fmt.Errorf("invalid DTW psi: %d", c.Psi)
	}

	if c.Metric != Dependent && c.Metric != Independent {
		return fmt.Errorf("invalid metric: %s", c.Metric)
	}

	return nil
}

// Reference returns the index of the demonstration with the smallest sum of DTW distances
// to all the other demonstrations and the distance sums.
// Distances are computed over task space position.
func Reference(demos []*trajectory.Timed, metric Metric) (int, []float64, error) {
	tcps, err := tcpSeries(demos)
	if err != nil {
		return 0, nil, err
	}

	n := len(tcps)
	dist := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var d float64
			switch metric {
			case Independent:
				d, err = IndependentDistance(tcps[i], tcps[j])
			default:
				d, err = Distance(tcps[i], tcps[j], 0, 0)
			}
			if err != nil {
				return 0, nil, err
			}
			dist.Set(i, j, d)
			dist.Set(j, i, d)
		}
	}

	sums := matrix.RowSums(dist)

	return floats.MinIdx(sums), sums, nil
}

func tcpSeries(demos []*trajectory.Timed) ([]*mat.Dense, error) {
	if len(demos) == 0 {
		return nil, ErrEmpty
	}

	dof := demos[0].Dof()
	tcps := make([]*mat.Dense, len(demos))
	for i, d := range demos {
		if d.Dof() != dof {
			return nil, fmt.Errorf("demonstration %d has %d joints, expected %d: %w", i, d.Dof(), dof, ErrDims)
		}
		tcp, err := d.TCP()
		if err != nil {
			return nil, fmt.Errorf("demonstration %d: %w", i, err)
		}
		tcps[i] = tcp
	}

	return tcps, nil
}

// Align aligns demonstrations in time and returns them as a Set.
// Every demonstration is warped onto the reference demonstration with DTW over task space
// position, duplicated samples are stretched in time, and the result is resampled at c.Freq
// and padded to equal length. Demonstrations keep their input order.
// A single demonstration is only resampled.
// It returns error if the configuration is invalid or demonstrations have inconsistent
// dimensions or do not record task space position.
func Align(ctx context.Context, demos []*trajectory.Timed, c Config, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	tcps, err := tcpSeries(demos)
	if err != nil {
		return nil, err
	}

	ref := 0
	if len(demos) > 1 {
		var sums []float64
		ref, sums, err = Reference(demos, c.Metric)
		if err != nil {
			return nil, err
		}
		logger.Info("selected reference demonstration", "index", ref, "distance", sums[ref], "metric", c.Metric)
	}

	resampled := make([]*trajectory.Timed, len(demos))
	for i, demo := range demos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		warped := demo
		if i != ref {
			path, err := Path(tcps[i], tcps[ref], c.Window, c.Psi)
			if err != nil {
				return nil, fmt.Errorf("demonstration %d: %w", i, err)
			}
			idx := make([]int, len(path))
			for k := range path {
				idx[k] = path[k][0]
			}
			if warped, err = demo.Warp(idx); err != nil {
				return nil, fmt.Errorf("demonstration %d: %w", i, err)
			}
			if warped, err = warped.StretchDuplicates(); err != nil {
				return nil, fmt.Errorf("demonstration %d: %w", i, err)
			}
		}

		if resampled[i], err = warped.Resample(c.Freq); err != nil {
			return nil, fmt.Errorf("demonstration %d: %w", i, err)
		}
		logger.Debug("aligned demonstration", "index", i, "samples", demo.Len(), "resampled", resampled[i].Len())
	}

	n := 0
	for _, r := range resampled {
		n = max(n, r.Len())
	}

	padded := make([]*trajectory.Timed, len(resampled))
	for i, r := range resampled {
		if padded[i], err = r.PadEnd(n, 1/c.Freq); err != nil {
			return nil, err
		}
	}

	t := make([]float64, n)
	for k := range t {
		t[k] = float64(k) / c.Freq
	}

	return NewSet(t, padded, ref, c.Freq)
}
