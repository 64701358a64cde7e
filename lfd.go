package lfd

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Trajectory is a sampled joint space trajectory
type Trajectory interface {
	// Len returns the number of samples
	Len() int
	// Dof returns the number of joints
	Dof() int
	// Joints returns joint angles stored in matrix rows
	Joints() *mat.Dense
	// JointsAt returns joint angles of the i-th sample
	JointsAt(i int) []float64
	// PadEndTo returns the trajectory extended to n samples by repeating its last sample
	PadEndTo(n int) (Trajectory, error)
}

// Timed is a trajectory with sample timestamps
type Timed interface {
	// Trajectory is a joint space trajectory
	Trajectory
	// Timestamps returns sample timestamps
	Timestamps() []float64
}

// Estimate is a Gaussian estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Controller is a robot controller client
type Controller interface {
	// Move pushes a formatted joint target and waits until the motion completes
	Move(ctx context.Context, target string) error
	// State returns current joint angles and task space pose
	State(ctx context.Context) (joints, pose []float64, err error)
}
