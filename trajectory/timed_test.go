package trajectory

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	lfd "github.com/milosgajdos/go-lfd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func ramp(n, dof int, dt float64) *Timed {
	t := make([]float64, n)
	joints := mat.NewDense(n, dof, nil)
	tcp := mat.NewDense(n, TCPDim, nil)
	for i := 0; i < n; i++ {
		t[i] = float64(i) * dt
		for j := 0; j < dof; j++ {
			joints.Set(i, j, float64(i*(j+1)))
		}
		for j := 0; j < TCPDim; j++ {
			tcp.Set(i, j, float64(i)+float64(j))
		}
	}

	tr, err := New(t, joints, tcp)
	if err != nil {
		panic(err)
	}

	return tr
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	joints := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})

	for _, test := range []struct {
		t      []float64
		joints *mat.Dense
		tcp    *mat.Dense
		err    error
	}{
		{t: []float64{0, 1, 2}, joints: joints},
		{t: []float64{0, 1, 2}, joints: joints, tcp: mat.NewDense(3, 3, nil)},
		{t: []float64{0, 1}, joints: joints, err: ErrDims},
		{t: []float64{0, 1, 2}, joints: joints, tcp: mat.NewDense(3, 2, nil), err: ErrDims},
		{t: []float64{0, 1, 1}, joints: joints, err: ErrTimestamps},
		{t: []float64{0, 2, 1}, joints: joints, err: ErrTimestamps},
		{t: []float64{0, math.NaN(), 2}, joints: joints, err: ErrMissing},
		{t: []float64{0, 1, 2}, joints: mat.NewDense(3, 2, []float64{1, 2, math.NaN(), 4, 5, 6}), err: ErrMissing},
	} {
		tr, err := New(test.t, test.joints, test.tcp)
		if test.err != nil {
			assert.Nil(tr)
			assert.True(errors.Is(err, test.err), "%v", err)
			continue
		}
		assert.NoError(err)
		assert.Equal(3, tr.Len())
		assert.Equal(2, tr.Dof())
		assert.Equal(test.tcp != nil, tr.HasTCP())
	}

	tr, err := New([]float64{0}, mat.NewDense(1, 2, nil), nil)
	assert.Nil(tr)
	assert.Error(err)
}

func TestFromRows(t *testing.T) {
	assert := assert.New(t)

	rows := mat.NewDense(2, 5, []float64{
		0.0, 1, 2, 3, 4,
		0.1, 5, 6, 7, 8,
	})

	tr, err := FromRows(rows, 4)
	assert.NoError(err)
	assert.False(tr.HasTCP())
	assert.Equal([]float64{5, 6, 7, 8}, tr.JointsAt(1))

	tr, err = FromRows(rows, 1)
	assert.NoError(err)
	assert.True(tr.HasTCP())
	tcp, err := tr.TCP()
	assert.NoError(err)
	assert.Equal([]float64{6, 7, 8}, mat.Row(nil, 1, tcp))

	for _, dof := range []int{0, 2, 3} {
		tr, err = FromRows(rows, dof)
		assert.Nil(tr)
		assert.True(errors.Is(err, ErrDims))
	}
}

func TestTimedCopies(t *testing.T) {
	assert := assert.New(t)

	tr := ramp(4, 2, 0.1)

	ts := tr.Timestamps()
	ts[0] = 100
	assert.Equal(0.0, tr.Timestamps()[0])

	j := tr.Joints()
	j.Set(0, 0, 100)
	assert.Equal(0.0, tr.JointsAt(0)[0])

	tj := tr.TimeJoints()
	r, c := tj.Dims()
	assert.Equal(4, r)
	assert.Equal(3, c)
	assert.InDeltaSlice([]float64{0.3, 3, 6}, mat.Row(nil, 3, tj), 1e-12)

	assert.InDelta(0.1, tr.Period(), 1e-12)
	assert.InDelta(10.0, tr.Rate(), 1e-9)
	assert.InDelta(0.3, tr.Duration(), 1e-12)

	notcp, err := New([]float64{0, 1}, mat.NewDense(2, 1, nil), nil)
	require.NoError(t, err)
	_, err = notcp.TCP()
	assert.True(errors.Is(err, ErrNoTCP))
}

func TestWarpStretchDuplicates(t *testing.T) {
	assert := assert.New(t)

	tr := ramp(4, 1, 0.1)

	w, err := tr.Warp([]int{0, 1, 1, 1, 2, 3, 3})
	assert.NoError(err)
	assert.Equal(7, w.Len())
	assert.Equal(tr.JointsAt(1), w.JointsAt(2))

	s, err := w.StretchDuplicates()
	assert.NoError(err)
	// period of the warped trajectory is 0.3/6
	p := 0.05
	want := []float64{0, 0.1, 0.1 + p, 0.1 + 2*p, 0.2 + 2*p, 0.3 + 2*p, 0.3 + 3*p}
	if diff := cmp.Diff(want, s.Timestamps(), approx); diff != "" {
		t.Errorf("unexpected timestamps (-want +got):\n%s", diff)
	}
	assert.True(mat.Equal(w.Joints(), s.Joints()))

	for _, idx := range [][]int{{0}, {0, 4}, {-1, 2}} {
		w, err := tr.Warp(idx)
		assert.Nil(w)
		assert.Error(err)
	}

	flat, err := tr.Warp([]int{2, 2, 2})
	assert.NoError(err)
	_, err = flat.StretchDuplicates()
	assert.True(errors.Is(err, ErrTimestamps))
}

func TestResample(t *testing.T) {
	assert := assert.New(t)

	// uniformly sampled trajectory resampled at its own frequency
	tr := ramp(11, 3, 0.01)
	r, err := tr.Resample(100)
	assert.NoError(err)
	assert.Equal(tr.Len(), r.Len())
	if diff := cmp.Diff(tr.Timestamps(), r.Timestamps(), approx); diff != "" {
		t.Errorf("unexpected timestamps (-want +got):\n%s", diff)
	}
	assert.True(mat.EqualApprox(tr.Joints(), r.Joints(), 1e-9))
	assert.True(r.HasTCP())

	// upsampling with an offset start
	up, err := New([]float64{1, 1.5, 2}, mat.NewDense(3, 1, []float64{0, 1, 3}), nil)
	require.NoError(t, err)
	r, err = up.Resample(4)
	assert.NoError(err)
	if diff := cmp.Diff([]float64{0, 0.25, 0.5, 0.75, 1}, r.Timestamps(), approx); diff != "" {
		t.Errorf("unexpected timestamps (-want +got):\n%s", diff)
	}
	assert.InDeltaSlice([]float64{0, 0.5, 1, 2, 3}, mat.Col(nil, 0, r.Joints()), 1e-9)

	for _, f := range []float64{0, -1, math.Inf(1), math.NaN()} {
		r, err := tr.Resample(f)
		assert.Nil(r)
		assert.Error(err)
	}

	// warped trajectory must be stretched first
	w, err := tr.Warp([]int{0, 0, 1})
	require.NoError(t, err)
	_, err = w.Resample(100)
	assert.True(errors.Is(err, ErrTimestamps))
}

func TestPadEnd(t *testing.T) {
	assert := assert.New(t)

	tr := ramp(3, 2, 0.01)

	p, err := tr.PadEnd(5, 0.01)
	assert.NoError(err)
	assert.Equal(5, p.Len())
	assert.InDeltaSlice([]float64{0, 0.01, 0.02, 0.03, 0.04}, p.Timestamps(), 1e-12)
	assert.Equal(tr.JointsAt(2), p.JointsAt(4))
	tcp, err := p.TCP()
	assert.NoError(err)
	assert.Equal(mat.Row(nil, 2, tcp), mat.Row(nil, 4, tcp))

	same, err := tr.PadEnd(3, 0.01)
	assert.NoError(err)
	assert.True(mat.Equal(tr.Joints(), same.Joints()))

	_, err = tr.PadEnd(2, 0.01)
	assert.Error(err)
	_, err = tr.PadEnd(5, 0)
	assert.Error(err)
}

func TestPadEndTo(t *testing.T) {
	assert := assert.New(t)

	motion, err := NewMotion(mat.NewDense(2, 2, []float64{0, 0, 1, 1}))
	require.NoError(t, err)

	for _, tr := range []lfd.Trajectory{ramp(3, 2, 0.01), motion} {
		last := tr.JointsAt(tr.Len() - 1)

		p, err := tr.PadEndTo(6)
		assert.NoError(err)
		assert.Equal(6, p.Len())
		assert.Equal(tr.Dof(), p.Dof())
		for i := tr.Len(); i < 6; i++ {
			assert.Equal(last, p.JointsAt(i))
		}

		p, err = tr.PadEndTo(1)
		assert.Nil(p)
		assert.Error(err)
	}

	p, err := ramp(3, 2, 0.01).PadEndTo(5)
	require.NoError(t, err)
	timed, ok := p.(lfd.Timed)
	require.True(t, ok)
	assert.InDeltaSlice([]float64{0, 0.01, 0.02, 0.03, 0.04}, timed.Timestamps(), 1e-12)
}
