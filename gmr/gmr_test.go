package gmr

import (
	"errors"
	"testing"

	"github.com/milosgajdos/go-lfd/align"
	"github.com/milosgajdos/go-lfd/gmm"
	"github.com/milosgajdos/go-lfd/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCondition(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2})
	g, err := gmm.New([]float64{1}, [][]float64{{0, 1}}, []mat.Symmetric{cov})
	require.NoError(t, err)

	r, err := New(g)
	assert.NoError(err)
	assert.Equal(1, r.Dim())

	assert.InDeltaSlice([]float64{2}, r.Mean(2), 1e-12)

	e, err := r.Condition(2)
	assert.NoError(err)
	assert.Equal(2.0, e.Time())
	assert.InDelta(2.0, e.Val().AtVec(0), 1e-12)
	assert.InDelta(1.75, e.Cov().At(0, 0), 1e-12)
}

func TestMixture(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(3, []float64{
		0.01, 0, 0,
		0, 0.1, 0,
		0, 0, 0.1,
	})
	g, err := gmm.New([]float64{1, 1}, [][]float64{{0, 1, 2}, {1, -1, -2}}, []mat.Symmetric{cov, cov})
	require.NoError(t, err)

	r, err := New(g)
	require.NoError(t, err)

	// each end is dominated by a single component
	assert.InDeltaSlice([]float64{1, 2}, r.Mean(0), 1e-6)
	assert.InDeltaSlice([]float64{-1, -2}, r.Mean(1), 1e-6)
	// halfway both components weigh the same
	assert.InDeltaSlice([]float64{0, 0}, r.Mean(0.5), 1e-9)

	e, err := r.Condition(0.5)
	require.NoError(t, err)
	// mixture variance adds the spread of component means
	assert.InDelta(0.1+1, e.Cov().At(0, 0), 1e-9)
	assert.InDelta(0.1+4, e.Cov().At(1, 1), 1e-9)
	assert.InDelta(2, e.Cov().At(0, 1), 1e-9)

	tr, err := r.Predict([]float64{0, 0.5, 1})
	assert.NoError(err)
	assert.Equal(3, tr.Len())
	assert.Equal(2, tr.Dof())
}

func TestNewErrors(t *testing.T) {
	assert := assert.New(t)

	g, err := gmm.New([]float64{1}, [][]float64{{0}}, []mat.Symmetric{mat.NewSymDense(1, []float64{1})})
	require.NoError(t, err)

	r, err := New(g)
	assert.Nil(r)
	assert.Error(err)
}

func TestRegress(t *testing.T) {
	assert := assert.New(t)

	// demonstrations of a linear motion with constant offsets
	n := 50
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) / 10
	}

	var demos []*trajectory.Timed
	for _, off := range [][2]float64{{-0.1, 0.05}, {0, -0.1}, {0.1, 0.08}} {
		joints := mat.NewDense(n, 2, nil)
		for i, v := range ts {
			joints.SetRow(i, []float64{v + off[0], -2*v + off[1]})
		}
		tr, err := trajectory.New(ts, joints, nil)
		require.NoError(t, err)
		demos = append(demos, tr)
	}

	set, err := align.NewSet(ts, demos, 1, 10)
	require.NoError(t, err)

	g, err := gmm.Fit(set.Pooled(), gmm.DefaultConfig(3))
	require.NoError(t, err)

	reg, err := Regress(set, g)
	assert.NoError(err)
	assert.Equal(n, reg.Len())
	assert.Equal(set.Timestamps(), reg.Timestamps())

	for _, i := range []int{0, n - 1} {
		got := reg.JointsAt(i)
		for j := range got {
			lo, hi := demos[0].JointsAt(i)[j], demos[0].JointsAt(i)[j]
			for _, d := range demos[1:] {
				lo = min(lo, d.JointsAt(i)[j])
				hi = max(hi, d.JointsAt(i)[j])
			}
			assert.True(got[j] >= lo-1e-9 && got[j] <= hi+1e-9, "sample %d joint %d: %v", i, j, got[j])
		}
	}

	other, err := gmm.Fit(mat.DenseCopyOf(set.Pooled().Slice(0, 3*n, 0, 2)), gmm.DefaultConfig(2))
	require.NoError(t, err)
	_, err = Regress(set, other)
	assert.True(errors.Is(err, gmm.ErrDims))
}
