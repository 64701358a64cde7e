package encode

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Test is a one-sided two-sample test of mean difference
type Test int

const (
	// Welch is Welch's unequal variances t-test
	Welch Test = iota
	// ZTest compares means with the normal approximation
	ZTest
)

// String implements the Stringer interface.
func (t Test) String() string {
	switch t {
	case Welch:
		return "welch"
	case ZTest:
		return "ztest"
	default:
		return fmt.Sprintf("Test(%d)", int(t))
	}
}

// MarshalText implements the encoding.TextMarshaler interface.
func (t Test) MarshalText() ([]byte, error) {
	if t != Welch && t != ZTest {
		return nil, fmt.Errorf("invalid test: %d", int(t))
	}

	return []byte(t.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (t *Test) UnmarshalText(text []byte) error {
	switch string(text) {
	case "welch":
		*t = Welch
	case "ztest":
		*t = ZTest
	default:
		return fmt.Errorf("invalid test: %q", text)
	}

	return nil
}

// Greater returns the p-value of the alternative hypothesis that the mean of a is greater
// than the mean of b. It returns NaN if either sample has fewer than two values or
// both samples are constant and equal.
func (t Test) Greater(a, b []float64) float64 {
	switch t {
	case ZTest:
		return zGreater(a, b)
	default:
		return WelchGreater(a, b)
	}
}

// WelchGreater returns the p-value of Welch's t-test for the alternative hypothesis
// that the mean of a is greater than the mean of b.
func WelchGreater(a, b []float64) float64 {
	ma, sa, ok := moments(a)
	if !ok {
		return math.NaN()
	}
	mb, sb, ok := moments(b)
	if !ok {
		return math.NaN()
	}

	se2 := sa + sb
	if se2 == 0 {
		return degenerate(ma, mb)
	}

	na, nb := float64(len(a)), float64(len(b))
	df := se2 * se2 / (sa*sa/(na-1) + sb*sb/(nb-1))

	tstat := (ma - mb) / math.Sqrt(se2)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}

	return dist.Survival(tstat)
}

func zGreater(a, b []float64) float64 {
	ma, sa, ok := moments(a)
	if !ok {
		return math.NaN()
	}
	mb, sb, ok := moments(b)
	if !ok {
		return math.NaN()
	}

	se2 := sa + sb
	if se2 == 0 {
		return degenerate(ma, mb)
	}

	return distuv.UnitNormal.Survival((ma - mb) / math.Sqrt(se2))
}

// moments returns the mean and the squared standard error of the mean of x.
func moments(x []float64) (mean, se2 float64, ok bool) {
	if len(x) < 2 {
		return 0, 0, false
	}

	mean, variance := stat.MeanVariance(x, nil)

	return mean, variance / float64(len(x)), true
}

func degenerate(ma, mb float64) float64 {
	switch {
	case ma > mb:
		return 0
	case ma < mb:
		return 1
	default:
		return math.NaN()
	}
}
