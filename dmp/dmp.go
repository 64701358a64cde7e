// Package dmp implements dynamic movement primitives which learn a forcing term
// reproducing a regression trajectory and generalize it to new start and goal joints.
package dmp

import (
	"errors"
	"fmt"
	"math"

	"github.com/milosgajdos/go-lfd/matrix"
	"github.com/milosgajdos/go-lfd/trajectory"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// eps guards divisions by summed kernel activations
	eps = 1e-10
	// velocityRatio is the fraction of the peak velocity considered as motion
	velocityRatio = 0.05
	// overlap scales the distance between adjacent kernel centers
	overlap = 0.55
)

var (
	// ErrDims is returned when vector or matrix dimensions mismatch
	ErrDims = errors.New("invalid dimensions")
	// ErrParams is returned when DMP parameters are invalid
	ErrParams = errors.New("invalid parameters")
	// ErrStatic is returned when the demonstration does not move
	ErrStatic = errors.New("static demonstration")
)

// Demo is a uniformly sampled demonstration prepared for fitting:
// joint positions with finite difference velocities and accelerations.
type Demo struct {
	traj *trajectory.Timed
	dt   float64
	tau  float64
	y    *mat.Dense
	yd   *mat.Dense
	ydd  *mat.Dense
}

// NewDemo prepares tr for fitting and returns it.
// Velocities are forward differences padded with a zero row, accelerations are forward
// differences of velocities padded with two zero rows. The time constant is the
// timestamp of the last sample whose velocity exceeds 5% of the peak joint velocity
// in any joint.
// It returns error if tr has fewer than 3 samples or does not move.
func NewDemo(tr *trajectory.Timed) (*Demo, error) {
	if tr.Len() < 3 {
		return nil, fmt.Errorf("invalid number of samples %d: %w", tr.Len(), ErrDims)
	}

	t := tr.Timestamps()
	dt := t[1] - t[0]
	rate := 1 / dt

	y := tr.Joints()
	yd, err := matrix.Diff(y, rate, 1)
	if err != nil {
		return nil, err
	}

	ydd, err := matrix.Diff(yd, rate, 2)
	if err != nil {
		return nil, err
	}

	threshold := velocityRatio * matrix.MaxAbs(yd)
	if threshold == 0 {
		return nil, ErrStatic
	}

	last := 0
	for i := 0; i < tr.Len(); i++ {
		for _, v := range yd.RawRowView(i) {
			if math.Abs(v) > threshold {
				last = i
				break
			}
		}
	}

	tau := t[last] - t[0]
	if tau <= 0 {
		tau = dt
	}

	return &Demo{
		traj: tr,
		dt:   dt,
		tau:  tau,
		y:    y,
		yd:   yd,
		ydd:  ydd,
	}, nil
}

// Len returns the number of demonstration samples
func (d *Demo) Len() int {
	return d.traj.Len()
}

// Dof returns the number of joints
func (d *Demo) Dof() int {
	return d.traj.Dof()
}

// Tau returns the time constant of the demonstration
func (d *Demo) Tau() float64 {
	return d.tau
}

// Trajectory returns the demonstrated trajectory
func (d *Demo) Trajectory() *trajectory.Timed {
	return d.traj
}

// Start returns the first joint sample
func (d *Demo) Start() []float64 {
	return d.traj.JointsAt(0)
}

// Goal returns the last joint sample
func (d *Demo) Goal() []float64 {
	return d.traj.JointsAt(d.traj.Len() - 1)
}

// Params are DMP hyperparameters
type Params struct {
	// Order is the canonical system order: 0 or 1
	Order int `json:"c_order" yaml:"order"`
	// AlphaZ is the critically damped gain of every joint
	AlphaZ []float64 `json:"alpha_z" yaml:"alpha_z"`
	// NRFs is the number of radial basis functions
	NRFs int `json:"n_rfs" yaml:"n_rfs"`
}

// Uniform returns parameters with the same alpha z gain for dof joints.
func Uniform(order int, alphaZ float64, nrfs, dof int) Params {
	a := make([]float64, dof)
	floats.AddConst(alphaZ, a)

	return Params{Order: order, AlphaZ: a, NRFs: nrfs}
}

// Validate validates p for dof joints.
func (p Params) Validate(dof int) error {
	if p.Order != 0 && p.Order != 1 {
		return fmt.Errorf("canonical order %d: %w", p.Order, ErrParams)
	}

	if p.NRFs < 2 {
		return fmt.Errorf("%d basis functions: %w", p.NRFs, ErrParams)
	}

	if len(p.AlphaZ) != dof {
		return fmt.Errorf("%d gains for %d joints: %w", len(p.AlphaZ), dof, ErrDims)
	}

	for _, a := range p.AlphaZ {
		if a <= 0 || math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("gain %v: %w", a, ErrParams)
		}
	}

	return nil
}

// gains are the coefficients derived from the alpha z gain of a joint
type gains struct {
	az, bz, ag, ax, av, bv float64
}

func newGains(az float64) gains {
	return gains{
		az: az,
		bz: az / 4,
		ag: az / 6,
		ax: az / 3,
		av: az,
		bv: az / 4,
	}
}

// Model is a DMP fitted to a demonstration. It is immutable once created.
type Model struct {
	demo  *Demo
	p     Params
	gains []gains
	// c are the kernel centers, one column per joint
	c *mat.Dense
	// d are the kernel widths, one column per joint
	d *mat.Dense
	// w are the kernel weights, one column per joint
	w *mat.Dense
}

// Fit fits DMP with parameters p to demo and returns it.
// It returns error if p are not valid for the demo joints.
func Fit(demo *Demo, p Params) (*Model, error) {
	dof := demo.Dof()
	if err := p.Validate(dof); err != nil {
		return nil, err
	}

	p.AlphaZ = append([]float64(nil), p.AlphaZ...)

	g := make([]gains, dof)
	for j := range g {
		g[j] = newGains(p.AlphaZ[j])
	}

	m := &Model{
		demo:  demo,
		p:     p,
		gains: g,
	}
	m.c, m.d = m.kernels()
	m.w = m.batchFit()

	return m, nil
}

// kernels places the kernel centers uniformly along the canonical phase and sets
// widths inversely proportional to the squared distance to the next center.
func (m *Model) kernels() (*mat.Dense, *mat.Dense) {
	n, dof := m.p.NRFs, m.demo.Dof()
	c := mat.NewDense(n, dof, nil)
	d := mat.NewDense(n, dof, nil)

	for j, g := range m.gains {
		for i := 0; i < n; i++ {
			t := float64(i) / float64(n-1)
			if m.p.Order == 1 {
				c.Set(i, j, (1+t*g.az/2)*math.Exp(-t*g.az/2))
				continue
			}
			c.Set(i, j, math.Exp(-t*g.ax))
		}

		for i := 0; i < n-1; i++ {
			s := (c.At(i+1, j) - c.At(i, j)) * overlap
			d.Set(i, j, 1/(s*s))
		}
		d.Set(n-1, j, d.At(n-2, j))
	}

	return c, d
}

// canonical holds the canonical system and goal filter state of a joint
type canonical struct {
	x, v, g float64
}

// step advances the canonical state by dt toward goal.
func (s *canonical) step(g gains, order int, tau, dt, goal float64) {
	var xd, vd float64
	if order == 1 {
		vd = g.av * (g.bv*(0-s.x) - s.v) / tau
		xd = s.v / tau
	} else {
		xd = g.ax * (0 - s.x) / tau
	}

	gd := g.ag * (goal - s.g)
	s.x += xd * dt
	s.v += vd * dt
	s.g += gd * dt
}

// basis returns the phase variable scaling the forcing term.
func (s *canonical) basis(order int) float64 {
	if order == 1 {
		return s.v
	}

	return s.x
}

// batchFit integrates the canonical system over the demonstration and solves
// locally weighted regression of the target forcing term for every kernel.
func (m *Model) batchFit() *mat.Dense {
	L, dof, n := m.demo.Len(), m.demo.Dof(), m.p.NRFs
	tau, dt := m.demo.tau, m.demo.dt
	w := mat.NewDense(n, dof, nil)

	x := make([]float64, L)
	b := make([]float64, L)
	f := make([]float64, L)

	for j, g := range m.gains {
		start, goal := m.demo.y.At(0, j), m.demo.y.At(L-1, j)
		s := canonical{x: 1, g: start}
		for i := 0; i < L; i++ {
			x[i], b[i] = s.x, s.basis(m.p.Order)
			y, yd, ydd := m.demo.y.At(i, j), m.demo.yd.At(i, j), m.demo.ydd.At(i, j)
			f[i] = ydd*tau*tau - g.az*(g.bz*(s.g-y)-yd*tau)
			s.step(g, m.p.Order, tau, dt, goal)
		}

		for k := 0; k < n; k++ {
			c, d := m.c.At(k, j), m.d.At(k, j)
			var sx2, sxtd float64
			for i := 0; i < L; i++ {
				psi := math.Exp(-0.5 * (x[i] - c) * (x[i] - c) * d)
				sx2 += b[i] * b[i] * psi
				sxtd += b[i] * f[i] * psi
			}
			w.Set(k, j, sxtd/(sx2+eps))
		}
	}

	return w
}

// Demo returns the demonstration the model was fitted to
func (m *Model) Demo() *Demo {
	return m.demo
}

// Params returns the model parameters
func (m *Model) Params() Params {
	p := m.p
	p.AlphaZ = append([]float64(nil), m.p.AlphaZ...)

	return p
}

// Centers returns kernel centers, one column per joint
func (m *Model) Centers() *mat.Dense {
	return mat.DenseCopyOf(m.c)
}

// Widths returns kernel widths, one column per joint
func (m *Model) Widths() *mat.Dense {
	return mat.DenseCopyOf(m.d)
}

// Weights returns kernel weights, one column per joint
func (m *Model) Weights() *mat.Dense {
	return mat.DenseCopyOf(m.w)
}

// Reproduce integrates the model from start joints toward goal joints and returns
// the reproduced trajectory sampled at the demonstration timestamps.
// It returns error if goal or start length differs from the number of joints.
func (m *Model) Reproduce(goal, start []float64) (*trajectory.Timed, error) {
	dof := m.demo.Dof()
	if len(goal) != dof || len(start) != dof {
		return nil, fmt.Errorf("goal %d and start %d for %d joints: %w", len(goal), len(start), dof, ErrDims)
	}

	L, n := m.demo.Len(), m.p.NRFs
	tau, dt := m.demo.tau, m.demo.dt
	out := mat.NewDense(L, dof, nil)
	psi := make([]float64, n)

	for j, g := range m.gains {
		s := canonical{x: 1, g: start[j]}
		if m.p.Order == 0 {
			s.g = goal[j]
		}
		y, z := start[j], 0.0

		for i := 0; i < L; i++ {
			for k := range psi {
				dx := s.x - m.c.At(k, j)
				psi[k] = math.Exp(-0.5 * dx * dx * m.d.At(k, j))
			}

			var num float64
			for k, p := range psi {
				num += m.w.At(k, j) * p
			}
			force := s.basis(m.p.Order) * num / (floats.Sum(psi) + float64(n)*eps)

			zd := (g.az*(g.bz*(s.g-y)-z) + force) / tau
			yd := z / tau

			s.step(g, m.p.Order, tau, dt, goal[j])
			z += zd * dt
			y += yd * dt
			out.Set(i, j, y)
		}
	}

	return trajectory.New(m.demo.traj.Timestamps(), out, nil)
}

// Error reproduces the demonstration from its own start to its own goal and returns
// the RMS error against the demonstration plus the distance of the final sample from the goal.
func (m *Model) Error() (float64, error) {
	goal := m.demo.Goal()

	repro, err := m.Reproduce(goal, m.demo.Start())
	if err != nil {
		return 0, err
	}

	rms, err := trajectory.RMSError(repro, m.demo.traj)
	if err != nil {
		return 0, err
	}

	return rms + floats.Distance(repro.JointsAt(repro.Len()-1), goal, 2), nil
}
