package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Base is a Gaussian estimate of joint angles at a point in time
type Base struct {
	// t is the time the estimate was conditioned on
	t float64
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

// NewBase returns base estimate at time t given val and cov.
// If cov is nil the estimate has zero covariance.
// It returns error if cov dimensions do not match val.
func NewBase(t float64, val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || val.Len() == 0 {
		return nil, fmt.Errorf("invalid estimate value")
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(v.Len(), nil)
	if cov != nil {
		if cov.SymmetricDim() != v.Len() {
			return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", v.Len(), cov.SymmetricDim(), cov.SymmetricDim())
		}
		c.CopySym(cov)
	}

	return &Base{
		t:   t,
		val: v,
		cov: c,
	}, nil
}

// Time returns the time the estimate was conditioned on
func (b *Base) Time() float64 {
	return b.t
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// StdDev returns standard deviations of the estimated value
func (b *Base) StdDev() []float64 {
	n := b.cov.SymmetricDim()
	std := make([]float64, n)
	for i := range std {
		std[i] = math.Sqrt(math.Max(b.cov.At(i, i), 0))
	}

	return std
}
