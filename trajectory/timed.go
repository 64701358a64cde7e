package trajectory

import (
	"errors"
	"fmt"
	"math"

	lfd "github.com/milosgajdos/go-lfd"
	"github.com/milosgajdos/go-lfd/matrix"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// TCPDim is the dimension of task space position
const TCPDim = 3

var (
	// ErrDims is returned when trajectory data dimensions do not match
	ErrDims = errors.New("dimension mismatch")
	// ErrTimestamps is returned when timestamps do not strictly increase
	ErrTimestamps = errors.New("timestamps not strictly increasing")
	// ErrMissing is returned when trajectory data contains missing values
	ErrMissing = errors.New("missing value")
	// ErrNoTCP is returned when task space position is required but not recorded
	ErrNoTCP = errors.New("task space position not available")
)

// Timed is a timestamped joint space trajectory with optional task space position.
// Timed is immutable: all operations return new trajectories.
type Timed struct {
	// t stores sample timestamps
	t []float64
	// joints stores joint angles in rows
	joints *mat.Dense
	// tcp stores task space positions in rows; nil if not recorded
	tcp *mat.Dense
}

// New creates new timed trajectory and returns it.
// It accepts the following parameters:
//   - t:      sample timestamps
//   - joints: joint angles stored in matrix rows
//   - tcp:    task space position stored in matrix rows; can be nil
//
// It returns error if either of the following conditions is met:
//   - fewer than 2 samples are given
//   - joints or tcp row count does not match the number of timestamps
//   - tcp does not have 3 columns
//   - timestamps do not strictly increase or any value is NaN
func New(t []float64, joints, tcp *mat.Dense) (*Timed, error) {
	tr, err := newTimed(t, joints, tcp)
	if err != nil {
		return nil, err
	}

	if err := tr.validate(); err != nil {
		return nil, err
	}

	return tr, nil
}

// FromRows creates new timed trajectory from matrix rows storing timestamp, dof joint angles
// and optionally 3 task space position coordinates in this order.
// It returns error if m column count is neither 1+dof nor 1+dof+3 or if New fails.
func FromRows(m *mat.Dense, dof int) (*Timed, error) {
	if m == nil || dof <= 0 {
		return nil, fmt.Errorf("invalid trajectory data: %w", ErrDims)
	}

	rows, cols := m.Dims()
	if cols != 1+dof && cols != 1+dof+TCPDim {
		return nil, fmt.Errorf("invalid column count %d for %d joints: %w", cols, dof, ErrDims)
	}

	t := mat.Col(nil, 0, m)
	joints := mat.DenseCopyOf(m.Slice(0, rows, 1, 1+dof))

	var tcp *mat.Dense
	if cols == 1+dof+TCPDim {
		tcp = mat.DenseCopyOf(m.Slice(0, rows, 1+dof, cols))
	}

	return New(t, joints, tcp)
}

func newTimed(t []float64, joints, tcp *mat.Dense) (*Timed, error) {
	if joints == nil {
		return nil, fmt.Errorf("invalid joints: %w", ErrDims)
	}

	if len(t) < 2 {
		return nil, fmt.Errorf("invalid number of samples: %d", len(t))
	}

	rows, _ := joints.Dims()
	if rows != len(t) {
		return nil, fmt.Errorf("invalid joints row count %d != %d: %w", rows, len(t), ErrDims)
	}

	tr := &Timed{
		t:      append([]float64(nil), t...),
		joints: mat.DenseCopyOf(joints),
	}

	if tcp != nil {
		r, c := tcp.Dims()
		if r != len(t) || c != TCPDim {
			return nil, fmt.Errorf("invalid tcp dimensions [%d x %d]: %w", r, c, ErrDims)
		}
		tr.tcp = mat.DenseCopyOf(tcp)
	}

	return tr, nil
}

func (tr *Timed) validate() error {
	for i, v := range tr.t {
		if math.IsNaN(v) {
			return fmt.Errorf("timestamp %d: %w", i, ErrMissing)
		}
		if i > 0 && v <= tr.t[i-1] {
			return fmt.Errorf("sample %d at %v: %w", i, v, ErrTimestamps)
		}
	}

	for _, m := range []*mat.Dense{tr.joints, tr.tcp} {
		if m != nil && hasNaN(m) {
			return fmt.Errorf("trajectory data: %w", ErrMissing)
		}
	}

	return nil
}

func hasNaN(m *mat.Dense) bool {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		for _, v := range m.RawRowView(i) {
			if math.IsNaN(v) {
				return true
			}
		}
	}

	return false
}

// Len returns the number of samples
func (tr *Timed) Len() int {
	return len(tr.t)
}

// Dof returns the number of joints
func (tr *Timed) Dof() int {
	_, c := tr.joints.Dims()
	return c
}

// Timestamps returns sample timestamps
func (tr *Timed) Timestamps() []float64 {
	return append([]float64(nil), tr.t...)
}

// Joints returns joint angles stored in matrix rows
func (tr *Timed) Joints() *mat.Dense {
	return mat.DenseCopyOf(tr.joints)
}

// JointsAt returns joint angles of the i-th sample.
// It panics if i is out of range.
func (tr *Timed) JointsAt(i int) []float64 {
	return mat.Row(nil, i, tr.joints)
}

// HasTCP returns true if the trajectory records task space position
func (tr *Timed) HasTCP() bool {
	return tr.tcp != nil
}

// TCP returns task space position stored in matrix rows.
// It returns ErrNoTCP if the trajectory does not record task space position.
func (tr *Timed) TCP() (*mat.Dense, error) {
	if tr.tcp == nil {
		return nil, ErrNoTCP
	}

	return mat.DenseCopyOf(tr.tcp), nil
}

// TimeJoints returns a matrix whose rows hold timestamp followed by joint angles
func (tr *Timed) TimeJoints() *mat.Dense {
	rows, cols := tr.joints.Dims()
	m := mat.NewDense(rows, cols+1, nil)
	m.SetCol(0, tr.t)
	m.Slice(0, rows, 1, cols+1).(*mat.Dense).Copy(tr.joints)

	return m
}

// Period returns the average time elapsed between two samples
func (tr *Timed) Period() float64 {
	n := len(tr.t)
	return (tr.t[n-1] - tr.t[0]) / float64(n-1)
}

// Rate returns the average sampling rate
func (tr *Timed) Rate() float64 {
	return 1 / tr.Period()
}

// Duration returns the time elapsed between the first and the last sample
func (tr *Timed) Duration() float64 {
	return tr.t[len(tr.t)-1] - tr.t[0]
}

// Warp returns a trajectory whose i-th sample is the idx[i]-th sample of tr.
// Consecutive samples of the returned trajectory may share the same timestamp.
// It returns error if idx is shorter than 2 or any index is out of range.
func (tr *Timed) Warp(idx []int) (*Timed, error) {
	if len(idx) < 2 {
		return nil, fmt.Errorf("invalid warping path length: %d", len(idx))
	}

	_, dof := tr.joints.Dims()
	t := make([]float64, len(idx))
	joints := mat.NewDense(len(idx), dof, nil)

	var tcp *mat.Dense
	if tr.tcp != nil {
		tcp = mat.NewDense(len(idx), TCPDim, nil)
	}

	for i, k := range idx {
		if k < 0 || k >= len(tr.t) {
			return nil, fmt.Errorf("invalid warping index: %d", k)
		}
		t[i] = tr.t[k]
		joints.SetRow(i, tr.joints.RawRowView(k))
		if tcp != nil {
			tcp.SetRow(i, tr.tcp.RawRowView(k))
		}
	}

	return &Timed{t: t, joints: joints, tcp: tcp}, nil
}

// StretchDuplicates returns a trajectory with strictly increasing timestamps.
// Every sample which exactly repeats its predecessor shifts itself and all the samples
// that follow it by the average sampling period of tr.
// It returns error if tr spans no time or the stretched trajectory is invalid.
func (tr *Timed) StretchDuplicates() (*Timed, error) {
	period := tr.Period()
	if period <= 0 {
		return nil, fmt.Errorf("invalid average sampling period %v: %w", period, ErrTimestamps)
	}

	dup := make([]bool, len(tr.t))
	for i := 1; i < len(tr.t); i++ {
		dup[i] = tr.sameSample(i, i-1)
	}

	t := make([]float64, len(tr.t))
	shift := 0.0
	for i := range tr.t {
		if dup[i] {
			shift += period
		}
		t[i] = tr.t[i] + shift
	}

	return New(t, tr.joints, tr.tcp)
}

func (tr *Timed) sameSample(i, j int) bool {
	if tr.t[i] != tr.t[j] {
		return false
	}

	if !equalRows(tr.joints, i, j) {
		return false
	}

	return tr.tcp == nil || equalRows(tr.tcp, i, j)
}

func equalRows(m *mat.Dense, i, j int) bool {
	a, b := m.RawRowView(i), m.RawRowView(j)
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}

	return true
}

// Resample returns tr linearly interpolated on a uniform grid with frequency freq.
// The returned timestamps start at 0 and are k/freq for k in [0, round(T*freq)],
// where T is the duration of tr. Grid points beyond T take the value of the last sample.
// It returns error if freq is not positive.
func (tr *Timed) Resample(freq float64) (*Timed, error) {
	if freq <= 0 || math.IsInf(freq, 0) || math.IsNaN(freq) {
		return nil, fmt.Errorf("invalid resampling frequency: %v", freq)
	}

	if err := tr.validate(); err != nil {
		return nil, err
	}

	xs := make([]float64, len(tr.t))
	for i, v := range tr.t {
		xs[i] = v - tr.t[0]
	}
	T := xs[len(xs)-1]

	num := int(math.Round(T*freq)) + 1
	t := make([]float64, num)
	for k := range t {
		t[k] = float64(k) / freq
	}

	joints, err := resampleCols(xs, tr.joints, t, T)
	if err != nil {
		return nil, err
	}

	var tcp *mat.Dense
	if tr.tcp != nil {
		if tcp, err = resampleCols(xs, tr.tcp, t, T); err != nil {
			return nil, err
		}
	}

	return &Timed{t: t, joints: joints, tcp: tcp}, nil
}

func resampleCols(xs []float64, m *mat.Dense, t []float64, max float64) (*mat.Dense, error) {
	_, cols := m.Dims()
	out := mat.NewDense(len(t), cols, nil)

	var pl interp.PiecewiseLinear
	for j := 0; j < cols; j++ {
		if err := pl.Fit(xs, mat.Col(nil, j, m)); err != nil {
			return nil, fmt.Errorf("failed to fit column %d: %w", j, err)
		}
		for k, x := range t {
			out.Set(k, j, pl.Predict(math.Min(x, max)))
		}
	}

	return out, nil
}

// PadEndTo returns tr extended to n samples by repeating its last sample.
// Timestamps of the padded samples increase by the sampling period.
func (tr *Timed) PadEndTo(n int) (lfd.Trajectory, error) {
	p, err := tr.PadEnd(n, tr.Period())
	if err != nil {
		return nil, err
	}

	return p, nil
}

// PadEnd returns tr extended to n samples by repeating its last sample.
// Timestamps of the padded samples increase by step.
// It returns error if n is smaller than the trajectory length or step is not positive.
func (tr *Timed) PadEnd(n int, step float64) (*Timed, error) {
	if n < len(tr.t) {
		return nil, fmt.Errorf("invalid padded length: %d < %d", n, len(tr.t))
	}

	if step <= 0 {
		return nil, fmt.Errorf("invalid padding time step: %v", step)
	}

	last := len(tr.t) - 1
	t := make([]float64, n)
	copy(t, tr.t)
	for i := len(tr.t); i < n; i++ {
		t[i] = tr.t[last] + float64(i-last)*step
	}

	return &Timed{
		t:      t,
		joints: matrix.PadEnd(tr.joints, n),
		tcp:    matrix.PadEnd(tr.tcp, n),
	}, nil
}
