package trajectory

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	lfd "github.com/milosgajdos/go-lfd"
	"github.com/milosgajdos/go-lfd/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrExists is returned when saving would overwrite an existing file
var ErrExists = errors.New("file already exists")

// Motion is a joint space trajectory without timestamps, such as a DMP reproduction
type Motion struct {
	joints *mat.Dense
}

// NewMotion creates new motion from joint angles stored in matrix rows.
// It returns error if joints is nil or has fewer than 2 rows.
func NewMotion(joints *mat.Dense) (*Motion, error) {
	if joints == nil {
		return nil, fmt.Errorf("invalid joints: %w", ErrDims)
	}

	if rows, _ := joints.Dims(); rows < 2 {
		return nil, fmt.Errorf("invalid number of samples: %d", rows)
	}

	return &Motion{joints: mat.DenseCopyOf(joints)}, nil
}

// Len returns the number of samples
func (m *Motion) Len() int {
	r, _ := m.joints.Dims()
	return r
}

// Dof returns the number of joints
func (m *Motion) Dof() int {
	_, c := m.joints.Dims()
	return c
}

// Joints returns joint angles stored in matrix rows
func (m *Motion) Joints() *mat.Dense {
	return mat.DenseCopyOf(m.joints)
}

// JointsAt returns joint angles of the i-th sample
func (m *Motion) JointsAt(i int) []float64 {
	return mat.Row(nil, i, m.joints)
}

// PadEndTo returns m extended to n samples by repeating its last sample.
func (m *Motion) PadEndTo(n int) (lfd.Trajectory, error) {
	p, err := m.PadEnd(n)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// PadEnd returns m extended to n samples by repeating its last sample.
// It returns error if n is smaller than the motion length.
func (m *Motion) PadEnd(n int) (*Motion, error) {
	if n < m.Len() {
		return nil, fmt.Errorf("invalid padded length: %d < %d", n, m.Len())
	}

	return &Motion{joints: matrix.PadEnd(m.joints, n)}, nil
}

type motionFile struct {
	Start      []float64   `json:"starting_j"`
	Goal       []float64   `json:"goal_j"`
	Trajectory [][]float64 `json:"trajectory"`
}

// Save writes the motion together with the start and goal it was reproduced for to path.
// It returns ErrExists if path already exists.
func (m *Motion) Save(path string, start, goal []float64) error {
	if len(start) != m.Dof() || len(goal) != m.Dof() {
		return fmt.Errorf("invalid start or goal length: %w", ErrDims)
	}

	rows := make([][]float64, m.Len())
	for i := range rows {
		rows[i] = m.JointsAt(i)
	}

	data, err := json.Marshal(motionFile{Start: start, Goal: goal, Trajectory: rows})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// LoadMotion reads a motion saved with Save.
// It returns the motion, its start and its goal.
func LoadMotion(path string) (*Motion, []float64, []float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}

	var mf motionFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid motion file %s: %w", path, err)
	}

	if len(mf.Trajectory) == 0 {
		return nil, nil, nil, fmt.Errorf("empty motion file %s: %w", path, ErrMissing)
	}

	dof := len(mf.Trajectory[0])
	joints := mat.NewDense(len(mf.Trajectory), dof, nil)
	for i, row := range mf.Trajectory {
		if len(row) != dof {
			return nil, nil, nil, fmt.Errorf("invalid row %d length %d: %w", i, len(row), ErrDims)
		}
		joints.SetRow(i, row)
	}

	m, err := NewMotion(joints)
	if err != nil {
		return nil, nil, nil, err
	}

	return m, mf.Start, mf.Goal, nil
}

// RMSError returns the sum of Euclidean joint errors between a and b divided by
// the square root of the number of samples.
// It returns error if a and b differ in length or number of joints.
func RMSError(a, b lfd.Trajectory) (float64, error) {
	if a.Len() != b.Len() || a.Dof() != b.Dof() {
		return 0, fmt.Errorf("invalid trajectories [%d x %d] and [%d x %d]: %w",
			a.Len(), a.Dof(), b.Len(), b.Dof(), ErrDims)
	}

	var sum float64
	diff := make([]float64, a.Dof())
	for i := 0; i < a.Len(); i++ {
		floats.SubTo(diff, a.JointsAt(i), b.JointsAt(i))
		sum += floats.Norm(diff, 2)
	}

	return sum / math.Sqrt(float64(a.Len())), nil
}

// Waypoints downsamples tr into the samples that move further than tol from the previously
// selected one. The first and the last sample are always selected.
func Waypoints(tr lfd.Trajectory, tol float64) [][]float64 {
	last := 0
	points := [][]float64{tr.JointsAt(0)}

	for i := 1; i < tr.Len(); i++ {
		next := tr.JointsAt(i)
		if floats.Distance(next, points[len(points)-1], 2) > tol {
			points = append(points, next)
			last = i
		}
	}

	if last != tr.Len()-1 {
		points = append(points, tr.JointsAt(tr.Len()-1))
	}

	return points
}
