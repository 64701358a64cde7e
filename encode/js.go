package encode

import (
	"errors"
	"fmt"
	"math"

	"github.com/milosgajdos/go-lfd/gmm"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNegativeDivergence is returned when the Monte Carlo divergence estimate is negative
var ErrNegativeDivergence = errors.New("negative divergence estimate")

// JS returns the Jensen-Shannon distance between p and q estimated from n samples
// drawn from each model. The divergence estimate is rounded to 6 decimal places
// before taking the square root.
// It returns ErrNegativeDivergence if the estimate is negative.
func JS(p, q *gmm.GMM, n int, src xrand.Source) (float64, error) {
	if p.Dim() != q.Dim() {
		return 0, fmt.Errorf("invalid model dimensions %d != %d: %w", p.Dim(), q.Dim(), gmm.ErrDims)
	}

	x, err := p.Sample(n, src)
	if err != nil {
		return 0, err
	}
	y, err := q.Sample(n, src)
	if err != nil {
		return 0, err
	}

	logPx, logMixX, err := mixScores(p, q, x)
	if err != nil {
		return 0, err
	}
	logPy, logMixY, err := mixScores(q, p, y)
	if err != nil {
		return 0, err
	}

	div := mean(logPx) - (mean(logMixX) - math.Ln2) + mean(logPy) - (mean(logMixY) - math.Ln2)
	div = math.Round(div*1e6) / 1e6
	if div < 0 {
		return 0, fmt.Errorf("%v: %w", div, ErrNegativeDivergence)
	}

	return math.Sqrt(div / 2), nil
}

// mixScores returns log densities of samples under own and the log of the summed
// densities under own and other.
func mixScores(own, other *gmm.GMM, samples mat.Matrix) ([]float64, []float64, error) {
	logOwn, err := own.ScoreSamples(samples)
	if err != nil {
		return nil, nil, err
	}

	logOther, err := other.ScoreSamples(samples)
	if err != nil {
		return nil, nil, err
	}

	logMix := make([]float64, len(logOwn))
	for i := range logMix {
		logMix[i] = floats.LogSumExp([]float64{logOwn[i], logOther[i]})
	}

	return logOwn, logMix, nil
}

func mean(x []float64) float64 {
	return floats.Sum(x) / float64(len(x))
}
