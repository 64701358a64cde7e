package bayesopt

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	// minLogScale and maxLogScale bound the kernel length scales
	minLogScale = -4.605170185988091 // log(0.01)
	maxLogScale = 4.605170185988092  // log(100)
	// noise is the observation noise variance added to the kernel diagonal
	noise = 1e-6
	// maxJitter bounds the diagonal jitter tried when factorizing the kernel
	maxJitter = 1e-2
)

// ErrNotPosDef is returned when the kernel matrix can not be factorized
var ErrNotPosDef = errors.New("kernel matrix is not positive definite")

// gp is a Gaussian process regression model with Matern 5/2 kernel over
// inputs normalized to the unit box and standardized outputs.
type gp struct {
	x     [][]float64
	mean  float64
	std   float64
	scale []float64
	l     *mat.TriDense
	alpha *mat.VecDense
}

// matern52 returns Matern 5/2 covariance of a and b with length scales l.
func matern52(a, b, l []float64) float64 {
	var r2 float64
	for i := range a {
		d := (a[i] - b[i]) / l[i]
		r2 += d * d
	}
	r := math.Sqrt(5 * r2)

	return (1 + r + r*r/3) * math.Exp(-r)
}

// kernel returns the covariance matrix of x with diagonal jitter.
func kernel(x [][]float64, l []float64, jitter float64) *mat.SymDense {
	n := len(x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := matern52(x[i], x[j], l)
			if i == j {
				v += jitter
			}
			k.SetSym(i, j, v)
		}
	}

	return k
}

// factorize returns the Cholesky factorization of the kernel of x.
// Jitter is increased tenfold until the factorization succeeds or maxJitter is exceeded.
func factorize(x [][]float64, l []float64) (*mat.Cholesky, error) {
	for jitter := noise; jitter <= maxJitter; jitter *= 10 {
		var chol mat.Cholesky
		if ok := chol.Factorize(kernel(x, l, jitter)); ok {
			return &chol, nil
		}
	}

	return nil, ErrNotPosDef
}

// scales maps log length scales to clamped length scales.
func scales(logl []float64) []float64 {
	l := make([]float64, len(logl))
	for i, v := range logl {
		l[i] = math.Exp(math.Max(minLogScale, math.Min(maxLogScale, v)))
	}

	return l
}

// nlml returns the negative log marginal likelihood of y given x and log length scales.
func nlml(x [][]float64, y *mat.VecDense, logl []float64) float64 {
	chol, err := factorize(x, scales(logl))
	if err != nil {
		return math.MaxFloat64
	}

	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, y); err != nil {
		return math.MaxFloat64
	}

	n := float64(y.Len())
	return 0.5*mat.Dot(y, &alpha) + 0.5*chol.LogDet() + 0.5*n*math.Log(2*math.Pi)
}

// fit fits the Gaussian process to observations y at normalized inputs x.
// Length scales maximize the marginal likelihood.
func fit(x [][]float64, y []float64) (*gp, error) {
	mean, std := stat.MeanStdDev(y, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}

	ys := make([]float64, len(y))
	copy(ys, y)
	floats.AddConst(-mean, ys)
	floats.Scale(1/std, ys)
	yv := mat.NewVecDense(len(ys), ys)

	dim := len(x[0])
	init := make([]float64, dim)
	for i := range init {
		init[i] = math.Log(0.5)
	}

	f := func(logl []float64) float64 {
		return nlml(x, yv, logl)
	}
	p := optimize.Problem{
		Func: f,
		Grad: func(grad, logl []float64) {
			fd.Gradient(grad, f, logl, nil)
		},
	}

	// line search failures still carry the best location found
	logl := init
	res, _ := optimize.Minimize(p, init, &optimize.Settings{MajorIterations: 50}, &optimize.LBFGS{})
	if res != nil && res.F < f(init) {
		logl = res.X
	}

	l := scales(logl)
	chol, err := factorize(x, l)
	if err != nil {
		return nil, err
	}

	alpha := mat.NewVecDense(len(ys), nil)
	if err := chol.SolveVecTo(alpha, yv); err != nil {
		return nil, err
	}

	var lt mat.TriDense
	chol.LTo(&lt)

	return &gp{
		x:     x,
		mean:  mean,
		std:   std,
		scale: l,
		l:     &lt,
		alpha: alpha,
	}, nil
}

// predict returns posterior mean and standard deviation at normalized input x
// in the original output units.
func (g *gp) predict(x []float64) (float64, float64) {
	n := len(g.x)
	ks := mat.NewVecDense(n, nil)
	for i := range g.x {
		ks.SetVec(i, matern52(x, g.x[i], g.scale))
	}

	mu := mat.Dot(ks, g.alpha)

	var v mat.VecDense
	if err := v.SolveVec(g.l, ks); err != nil {
		return g.mean + mu*g.std, 0
	}

	variance := 1 - mat.Dot(&v, &v)
	if variance < 0 {
		variance = 0
	}

	return g.mean + mu*g.std, math.Sqrt(variance) * g.std
}
