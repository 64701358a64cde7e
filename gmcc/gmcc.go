// Package gmcc implements the generalized multiple correlation coefficient which scores
// similarity of two trajectories up to the best fitting linear transform between them.
package gmcc

import (
	"errors"
	"fmt"
	"math"

	lfd "github.com/milosgajdos/go-lfd"
	"github.com/milosgajdos/go-lfd/matrix"
	"github.com/milosgajdos/go-lfd/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultTol is the default motion onset tolerance
const DefaultTol = 0.1

var (
	// ErrDims is returned when trajectory dimensions mismatch
	ErrDims = errors.New("invalid dimensions")
	// ErrDegenerate is returned when the ground truth does not vary
	ErrDegenerate = errors.New("degenerate ground truth")
)

// Transform returns the matrix A minimizing the Frobenius norm of repro*A - truth.
// The search starts from a random matrix drawn from src.
// It returns error if truth and repro dimensions differ.
func Transform(truth, repro mat.Matrix, src xrand.Source) (*mat.Dense, error) {
	r, c := truth.Dims()
	if rr, rc := repro.Dims(); rr != r || rc != c {
		return nil, fmt.Errorf("truth [%d x %d] repro [%d x %d]: %w", r, c, rr, rc, ErrDims)
	}

	resid := mat.NewDense(r, c, nil)
	residual := func(x []float64) *mat.Dense {
		a := mat.NewDense(c, c, x)
		resid.Mul(repro, a)
		resid.Sub(resid, truth)
		return resid
	}

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			n := mat.Norm(residual(x), 2)
			return 0.5 * n * n
		},
		Grad: func(grad, x []float64) {
			g := mat.NewDense(c, c, grad)
			g.Mul(repro.T(), residual(x))
		},
	}

	init := make([]float64, c*c)
	u := distuv.Uniform{Min: 0, Max: 1, Src: src}
	for i := range init {
		init[i] = u.Rand()
	}

	settings := &optimize.Settings{
		MajorIterations:   1000,
		GradientThreshold: 1e-10,
	}

	// a stalled line search still carries the best location found
	res, err := optimize.Minimize(p, init, settings, &optimize.LBFGS{})
	if res == nil {
		return nil, err
	}

	return mat.NewDense(c, c, res.X), nil
}

// Score returns the directional GMCC of repro with respect to truth:
// the norm of the transformed repro deviation from the truth mean divided by
// the norm of the truth deviation from its mean.
// It returns ErrDims if dimensions differ and ErrDegenerate if truth is constant.
func Score(truth, repro mat.Matrix, src xrand.Source) (float64, error) {
	r, c := truth.Dims()
	if rr, rc := repro.Dims(); rr != r || rc != c {
		return 0, fmt.Errorf("truth [%d x %d] repro [%d x %d]: %w", r, c, rr, rc, ErrDims)
	}

	mean := matrix.ColMeans(mat.DenseCopyOf(truth))
	centered := func(m mat.Matrix) float64 {
		d := mat.DenseCopyOf(m)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				d.Set(i, j, d.At(i, j)-mean[j])
			}
		}
		return mat.Norm(d, 2)
	}

	denom := centered(truth)
	if denom == 0 || math.IsNaN(denom) {
		return 0, ErrDegenerate
	}

	a, err := Transform(truth, repro, src)
	if err != nil {
		return 0, err
	}

	var pred mat.Dense
	pred.Mul(repro, a)

	return centered(&pred) / denom, nil
}

// Symmetric returns the average of the directional scores of b with respect to a and
// of a with respect to b. Both directions start from the same seeded random transform,
// so the score does not depend on the argument order.
func Symmetric(a, b mat.Matrix, seed uint64) (float64, error) {
	ab, err := Score(a, b, rand.NewSource(seed))
	if err != nil {
		return 0, err
	}

	ba, err := Score(b, a, rand.NewSource(seed))
	if err != nil {
		return 0, err
	}

	return 0.5 * (ab + ba), nil
}

// Trajectories returns the symmetric GMCC of joint angles of a and b after
// matching their lengths with Prepare.
func Trajectories(a, b lfd.Trajectory, tol float64, seed uint64) (float64, error) {
	pa, pb, err := Prepare(a.Joints(), b.Joints(), tol)
	if err != nil {
		return 0, err
	}

	return Symmetric(pa, pb, seed)
}

// Onset returns the index of the first sample after which m moves by at least tol
// in any column. It returns the last index if m never moves.
func Onset(m mat.Matrix, tol float64) int {
	rows, cols := m.Dims()

	onset := rows - 1
	for j := 0; j < cols; j++ {
		for i := 0; i < onset; i++ {
			if math.Abs(m.At(i, j)-m.At(i+1, j)) >= tol {
				onset = i
				break
			}
		}
	}

	return onset
}

// Prepare trims the static onset of a and b and pads the end of the shorter one by
// repeating its last row so both have the same length.
// It returns error if a and b differ in the number of columns.
func Prepare(a, b *mat.Dense, tol float64) (*mat.Dense, *mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != bc {
		return nil, nil, fmt.Errorf("columns %d and %d: %w", ac, bc, ErrDims)
	}

	oa, ob := Onset(a, tol), Onset(b, tol)
	ta := a.Slice(oa, ar, 0, ac).(*mat.Dense)
	tb := b.Slice(ob, br, 0, bc).(*mat.Dense)

	n := max(ar-oa, br-ob)

	return matrix.PadEnd(ta, n), matrix.PadEnd(tb, n), nil
}
