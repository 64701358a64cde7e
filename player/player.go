// Package player plays trajectories on a robot through a controller client.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	lfd "github.com/milosgajdos/go-lfd"
	"github.com/milosgajdos/go-lfd/trajectory"
	"gonum.org/v1/gonum/floats"
)

const (
	// ExtAxes is the number of external axes of a target
	ExtAxes = 6
	// unusedAxis marks an unused external axis
	unusedAxis = "9E+09"
	// DefaultTol is the default distance between consecutive waypoints
	DefaultTol = 0.1
)

// ErrDims is returned when the goal length differs from the robot joint count
var ErrDims = errors.New("invalid dimensions")

// Target encodes joints as a controller target: joint angles rounded to 3 decimals
// followed by unused external axes.
func Target(joints []float64) string {
	var sb strings.Builder

	sb.WriteString("[[")
	for i, j := range joints {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(math.Round(j*1000)/1000, 'f', -1, 64))
	}
	sb.WriteString("],[")
	for i := 0; i < ExtAxes; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(unusedAxis)
	}
	sb.WriteString("]]")

	return sb.String()
}

// Play moves the robot through the waypoints of tr which are further than tol apart.
// It returns the number of targets sent. Play stops at the first failed move or when
// ctx is cancelled.
func Play(ctx context.Context, c lfd.Controller, tr lfd.Trajectory, tol float64, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	points := trajectory.Waypoints(tr, tol)
	logger.Info("playing trajectory", "samples", tr.Len(), "waypoints", len(points))

	for i, p := range points {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		target := Target(p)
		if err := c.Move(ctx, target); err != nil {
			return i, fmt.Errorf("move to waypoint %d %s: %w", i, target, err)
		}
		logger.Debug("waypoint reached", "index", i, "target", target)
	}

	return len(points), nil
}

// JointError returns the Euclidean distance between goal and the current robot joints.
func JointError(ctx context.Context, c lfd.Controller, goal []float64) (float64, error) {
	joints, _, err := c.State(ctx)
	if err != nil {
		return 0, err
	}

	if len(joints) != len(goal) {
		return 0, fmt.Errorf("goal %d for %d joints: %w", len(goal), len(joints), ErrDims)
	}

	return floats.Distance(goal, joints, 2), nil
}
