package align

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-lfd/trajectory"
	"gonum.org/v1/gonum/mat"
)

// Set is a set of aligned demonstrations sharing a single time vector.
type Set struct {
	t     []float64
	trajs []*trajectory.Timed
	ref   int
	freq  float64
}

// NewSet creates a set of aligned trajectories sharing the timestamps t.
// Member timestamps must match t within 1e-9; they are replaced by t.
// It accepts the following parameters:
//   - t:     shared timestamps
//   - trajs: aligned trajectories
//   - ref:   index of the reference trajectory
//   - freq:  sampling frequency of t
//
// It returns error if trajs is empty, ref is out of range or the trajectories differ
// in length, number of joints or timestamps.
func NewSet(t []float64, trajs []*trajectory.Timed, ref int, freq float64) (*Set, error) {
	if len(trajs) == 0 {
		return nil, ErrEmpty
	}

	if ref < 0 || ref >= len(trajs) {
		return nil, fmt.Errorf("invalid reference index: %d", ref)
	}

	dof := trajs[0].Dof()
	members := make([]*trajectory.Timed, len(trajs))
	for i, tr := range trajs {
		if tr.Len() != len(t) || tr.Dof() != dof {
			return nil, fmt.Errorf("trajectory %d [%d x %d], expected [%d x %d]: %w",
				i, tr.Len(), tr.Dof(), len(t), dof, ErrDims)
		}

		for k, v := range tr.Timestamps() {
			if math.Abs(v-t[k]) > 1e-9 {
				return nil, fmt.Errorf("trajectory %d timestamp %d: %v != %v", i, k, v, t[k])
			}
		}

		var tcp *mat.Dense
		if tr.HasTCP() {
			tcp, _ = tr.TCP()
		}

		m, err := trajectory.New(t, tr.Joints(), tcp)
		if err != nil {
			return nil, fmt.Errorf("trajectory %d: %w", i, err)
		}
		members[i] = m
	}

	return &Set{
		t:     append([]float64(nil), t...),
		trajs: members,
		ref:   ref,
		freq:  freq,
	}, nil
}

// Len returns the number of trajectories in the set
func (s *Set) Len() int {
	return len(s.trajs)
}

// Samples returns the number of samples of every trajectory
func (s *Set) Samples() int {
	return len(s.t)
}

// Dof returns the number of joints
func (s *Set) Dof() int {
	return s.trajs[0].Dof()
}

// Freq returns the sampling frequency
func (s *Set) Freq() float64 {
	return s.freq
}

// Reference returns the index of the reference trajectory
func (s *Set) Reference() int {
	return s.ref
}

// Timestamps returns the shared timestamps
func (s *Set) Timestamps() []float64 {
	return append([]float64(nil), s.t...)
}

// Trajectory returns the i-th trajectory.
// It panics if i is out of range.
func (s *Set) Trajectory(i int) *trajectory.Timed {
	return s.trajs[i]
}

// Pooled returns samples of all trajectories stacked in rows of a single matrix.
// Every row holds a timestamp followed by joint angles.
func (s *Set) Pooled() *mat.Dense {
	n, dof := len(s.t), s.Dof()
	pooled := mat.NewDense(n*len(s.trajs), dof+1, nil)

	for i, tr := range s.trajs {
		pooled.Slice(i*n, (i+1)*n, 0, dof+1).(*mat.Dense).Copy(tr.TimeJoints())
	}

	return pooled
}
