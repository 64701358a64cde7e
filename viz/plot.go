// Package viz plots joint trajectories.
package viz

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	lfd "github.com/milosgajdos/go-lfd"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	// Width is the default width of saved plots
	Width = 8 * vg.Inch
	// Height is the default height of saved plots
	Height = 5 * vg.Inch
)

// ErrJoint is returned when the plotted joint does not exist
var ErrJoint = errors.New("invalid joint")

// Series is a named trajectory
type Series struct {
	Name string
	Traj lfd.Timed
}

// Estimate is a Gaussian estimate at a point in time
type Estimate interface {
	lfd.Estimate
	// Time returns the estimate time
	Time() float64
}

// JointPlot plots joint angles of the given joint of every series against time.
// When band is not empty its mean and two standard deviation bounds are plotted as well.
// It returns ErrJoint if any series or estimate does not have the joint.
func JointPlot(joint int, series []Series, band []Estimate) (*plot.Plot, error) {
	if joint < 0 {
		return nil, fmt.Errorf("joint %d: %w", joint, ErrJoint)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Joint %d", joint+1)
	p.X.Label.Text = "time [s]"
	p.Y.Label.Text = "angle"
	p.Legend.Top = true

	for i, s := range series {
		if joint >= s.Traj.Dof() {
			return nil, fmt.Errorf("joint %d of %s: %w", joint, s.Name, ErrJoint)
		}

		line, err := plotter.NewLine(jointPoints(s.Traj, joint))
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)

		p.Add(line)
		p.Legend.Add(s.Name, line)
	}

	if len(band) == 0 {
		return p, nil
	}

	mean := make(plotter.XYs, len(band))
	lower := make(plotter.XYs, len(band))
	upper := make(plotter.XYs, len(band))
	for i, e := range band {
		if joint >= e.Val().Len() {
			return nil, fmt.Errorf("joint %d of estimate %d: %w", joint, i, ErrJoint)
		}

		m := e.Val().AtVec(joint)
		sd := 2 * math.Sqrt(math.Max(e.Cov().At(joint, joint), 0))
		mean[i] = plotter.XY{X: e.Time(), Y: m}
		lower[i] = plotter.XY{X: e.Time(), Y: m - sd}
		upper[i] = plotter.XY{X: e.Time(), Y: m + sd}
	}

	gray := color.RGBA{R: 169, G: 169, B: 169, A: 255}
	for _, b := range []plotter.XYs{lower, upper} {
		line, err := plotter.NewLine(b)
		if err != nil {
			return nil, err
		}
		line.Color = gray
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
	}

	line, err := plotter.NewLine(mean)
	if err != nil {
		return nil, err
	}
	line.Color = color.Black
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add("regression", line)

	return p, nil
}

func jointPoints(tr lfd.Timed, joint int) plotter.XYs {
	t := tr.Timestamps()
	pts := make(plotter.XYs, len(t))
	for i := range t {
		pts[i].X = t[i]
		pts[i].Y = tr.JointsAt(i)[joint]
	}

	return pts
}

// Save saves p to path with the default size.
// The image format is inferred from the path extension.
func Save(p *plot.Plot, path string) error {
	return p.Save(Width, Height, path)
}
