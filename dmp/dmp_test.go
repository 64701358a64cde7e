package dmp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/milosgajdos/go-lfd/bayesopt"
	"github.com/milosgajdos/go-lfd/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ramp   *trajectory.Timed
	swing  *trajectory.Timed
)

func setup() {
	var err error

	// four samples ramping every joint from 0 to 0.2
	rows := mat.NewDense(4, 7, nil)
	for i, v := range []float64{0, 0, 0.1, 0.2} {
		rows.Set(i, 0, float64(i)/100)
		for j := 1; j < 7; j++ {
			rows.Set(i, j, v)
		}
	}
	if ramp, err = trajectory.FromRows(rows, 6); err != nil {
		panic(err)
	}

	// two seconds of smooth two joint motion
	n := 200
	t := make([]float64, n)
	joints := mat.NewDense(n, 2, nil)
	for i := range t {
		t[i] = float64(i) / 100
		s := 1 - math.Cos(math.Pi*float64(i)/float64(n-1))
		joints.SetRow(i, []float64{0.5 * s, -0.3 * s})
	}
	if swing, err = trajectory.New(t, joints, nil); err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func TestNewDemo(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDemo(ramp)
	assert.NoError(err)
	assert.Equal(4, d.Len())
	assert.Equal(6, d.Dof())
	assert.InDelta(0.02, d.Tau(), 1e-12)
	assert.Equal(ramp.JointsAt(0), d.Start())
	assert.Equal(ramp.JointsAt(3), d.Goal())

	// velocities pad one row, accelerations two
	assert.InDeltaSlice([]float64{0, 10, 10, 0}, mat.Col(nil, 0, d.yd), 1e-9)
	assert.InDeltaSlice([]float64{1000, 0, 0, 0}, mat.Col(nil, 0, d.ydd), 1e-6)

	d, err = NewDemo(swing)
	assert.NoError(err)
	assert.InDelta(1.95, d.Tau(), 1e-9)

	short, err := trajectory.New([]float64{0, 1}, mat.NewDense(2, 1, []float64{0, 1}), nil)
	require.NoError(t, err)
	_, err = NewDemo(short)
	assert.True(errors.Is(err, ErrDims))

	static, err := trajectory.New([]float64{0, 1, 2}, mat.NewDense(3, 1, []float64{1, 1, 1}), nil)
	require.NoError(t, err)
	_, err = NewDemo(static)
	assert.True(errors.Is(err, ErrStatic))
}

func TestParamsValidate(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		p   Params
		err error
	}{
		{Uniform(1, 18, 30, 2), nil},
		{Uniform(0, 18, 30, 2), nil},
		{Uniform(2, 18, 30, 2), ErrParams},
		{Uniform(1, 18, 1, 2), ErrParams},
		{Uniform(1, 0, 30, 2), ErrParams},
		{Uniform(1, 18, 30, 3), ErrDims},
	}

	for _, tc := range testCases {
		err := tc.p.Validate(2)
		if tc.err == nil {
			assert.NoError(err)
			continue
		}
		assert.True(errors.Is(err, tc.err), "%v", tc.p)
	}
}

func TestKernels(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDemo(swing)
	require.NoError(t, err)

	m, err := Fit(d, Uniform(1, 18, 30, 2))
	require.NoError(t, err)

	c, w := m.Centers(), m.Widths()
	for j := 0; j < 2; j++ {
		assert.InDelta(1.0, c.At(0, j), 1e-9)
		assert.InDelta(0.96073708, c.At(1, j), 1e-6)
		assert.InDelta(0.0012341, c.At(29, j), 1e-6)
		assert.InDelta(2144.41789, w.At(0, j), 0.1)
		assert.Equal(w.At(28, j), w.At(29, j))
	}

	r, cols := m.Weights().Dims()
	assert.Equal(30, r)
	assert.Equal(2, cols)

	m, err = Fit(d, Uniform(0, 18, 30, 2))
	require.NoError(t, err)
	// first order phase decays exponentially with alpha_x = alpha_z/3
	assert.InDelta(math.Exp(-6.0/29), m.Centers().At(1, 0), 1e-12)
}

func TestReproduce(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDemo(ramp)
	require.NoError(t, err)

	m, err := Fit(d, Uniform(1, 1.8, 2, 6))
	require.NoError(t, err)

	goal := []float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.2}
	repro, err := m.Reproduce(goal, make([]float64, 6))
	assert.NoError(err)
	assert.Equal(4, repro.Len())
	assert.Equal(ramp.Timestamps(), repro.Timestamps())
	assert.InDeltaSlice(goal, repro.JointsAt(3), 5e-3)

	_, err = m.Reproduce(goal[:5], make([]float64, 6))
	assert.True(errors.Is(err, ErrDims))
	_, err = m.Reproduce(goal, make([]float64, 7))
	assert.True(errors.Is(err, ErrDims))
}

func TestReproduceGoal(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDemo(swing)
	require.NoError(t, err)

	m, err := Fit(d, Uniform(1, 18, 30, 2))
	require.NoError(t, err)

	testCases := []struct {
		start []float64
		goal  []float64
	}{
		{d.Start(), d.Goal()},
		{[]float64{0.1, 0.1}, []float64{1.0, 0.2}},
	}

	for _, tc := range testCases {
		repro, err := m.Reproduce(tc.goal, tc.start)
		assert.NoError(err)
		assert.Equal(swing.Len(), repro.Len())
		assert.InDeltaSlice(tc.goal, repro.JointsAt(repro.Len()-1), 0.02)
	}

	// reproductions do not share state
	a, err := m.Reproduce(d.Goal(), d.Start())
	require.NoError(t, err)
	b, err := m.Reproduce(d.Goal(), d.Start())
	require.NoError(t, err)
	assert.True(mat.Equal(a.Joints(), b.Joints()))

	e, err := m.Error()
	assert.NoError(err)
	assert.InDelta(0.082, e, 1e-3)

	m, err = Fit(d, Uniform(0, 18, 30, 2))
	require.NoError(t, err)
	repro, err := m.Reproduce(d.Goal(), d.Start())
	assert.NoError(err)
	assert.InDeltaSlice(d.Goal(), repro.JointsAt(repro.Len()-1), 0.05)
}

func TestParamsCopy(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDemo(swing)
	require.NoError(t, err)

	p := Uniform(1, 18, 30, 2)
	m, err := Fit(d, p)
	require.NoError(t, err)

	p.AlphaZ[0] = 1
	assert.Equal(18.0, m.Params().AlphaZ[0])

	q := m.Params()
	q.AlphaZ[0] = 1
	assert.Equal(18.0, m.Params().AlphaZ[0])
}

func TestConfig(t *testing.T) {
	assert := assert.New(t)

	c := DefaultConfig()
	assert.NoError(c.Validate())
	assert.Equal(bayesopt.Space{{Min: 5, Max: 30}, {Min: 50, Max: 200}}, c.Space(6))

	p, err := c.Params([]int{12, 180}, 3)
	assert.NoError(err)
	assert.Equal(Uniform(1, 12, 180, 3), p)

	_, err = c.Params([]int{1, 2, 3}, 2)
	assert.True(errors.Is(err, ErrDims))

	c.PerJoint = true
	assert.Len(c.Space(6), 7)

	p, err = c.Params([]int{5, 6, 7, 100}, 3)
	assert.NoError(err)
	assert.Equal([]float64{5, 6, 7}, p.AlphaZ)
	assert.Equal(100, p.NRFs)

	mods := []func(*Config){
		func(c *Config) { c.Order = 3 },
		func(c *Config) { c.AlphaZ = bayesopt.Dim{Min: 0, Max: 5} },
		func(c *Config) { c.NRFs = bayesopt.Dim{Min: 1, Max: 5} },
		func(c *Config) { c.NRFs = bayesopt.Dim{Min: 10, Max: 5} },
		func(c *Config) { c.Optimizer.Calls = 0 },
	}
	for _, mod := range mods {
		c := DefaultConfig()
		mod(&c)
		assert.Error(c.Validate())
	}
}

func TestOptimize(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDemo(swing)
	require.NoError(t, err)

	c := DefaultConfig()
	c.NRFs = bayesopt.Dim{Min: 10, Max: 40}
	c.Optimizer.Calls = 6
	c.Optimizer.InitPoints = 3
	c.Optimizer.Candidates = 50

	m, res, err := Optimize(context.Background(), d, c, logger)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.Len(res.Xs, 6)

	p := m.Params()
	assert.Equal(res.X[1], p.NRFs)
	assert.Equal(float64(res.X[0]), p.AlphaZ[0])
	assert.Equal(float64(res.X[0]), p.AlphaZ[1])

	e, err := m.Error()
	assert.NoError(err)
	assert.InDelta(res.F, e, 1e-12)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Optimize(ctx, d, c, logger)
	assert.True(errors.Is(err, context.Canceled))

	c.Order = 5
	_, _, err = Optimize(context.Background(), d, c, logger)
	assert.True(errors.Is(err, ErrParams))
}

func TestSaveLoad(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDemo(swing)
	require.NoError(t, err)

	m, err := Fit(d, Uniform(1, 12, 40, 2))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "model")
	assert.NoError(Save(dir, m))
	assert.FileExists(filepath.Join(dir, RegressionFile))
	assert.FileExists(filepath.Join(dir, ParamsFile))

	err = Save(dir, m)
	assert.True(errors.Is(err, ErrExists))

	err = Save(filepath.Join(t.TempDir(), "missing", "model"), m)
	assert.Error(err)

	loaded, err := Load(dir)
	assert.NoError(err)
	assert.Equal(m.Params(), loaded.Params())
	assert.True(mat.EqualApprox(m.Weights(), loaded.Weights(), 1e-12))
	assert.True(mat.Equal(swing.TimeJoints(), loaded.Demo().Trajectory().TimeJoints()))

	_, err = Load(t.TempDir())
	assert.True(errors.Is(err, ErrNotFound))

	partial := t.TempDir()
	data, err := os.ReadFile(filepath.Join(dir, ParamsFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(partial, ParamsFile), data, 0o644))
	_, err = Load(partial)
	assert.True(errors.Is(err, ErrNotFound))
}

func TestSaveCleanup(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDemo(swing)
	require.NoError(t, err)

	m, err := Fit(d, Uniform(1, 12, 40, 2))
	require.NoError(t, err)

	errWrite := errors.New("disk full")
	failing := func(string, []byte) error { return errWrite }

	// directory created by the failed call is removed
	dir := filepath.Join(t.TempDir(), "model")
	err = save(dir, m, failing)
	assert.True(errors.Is(err, errWrite))
	assert.NoDirExists(dir)

	// existing directory is kept but left without model files
	existing := t.TempDir()
	err = save(existing, m, failing)
	assert.True(errors.Is(err, errWrite))
	assert.DirExists(existing)
	assert.NoFileExists(filepath.Join(existing, RegressionFile))

	assert.NoError(Save(existing, m))
	loaded, err := Load(existing)
	assert.NoError(err)
	assert.Equal(m.Params(), loaded.Params())
}
