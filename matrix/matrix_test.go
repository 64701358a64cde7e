package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestRowSumsColMeans(t *testing.T) {
	assert := assert.New(t)

	data := []float64{1.2, 3.4, 4.5, 6.7, 8.9, 10.0}
	rowSums := []float64{4.6, 11.2, 18.9}
	colMeans := []float64{14.6 / 3, 20.1 / 3}
	delta := 0.001

	m := mat.NewDense(3, 2, data)
	assert.NotNil(m)

	resRows := RowSums(m)
	assert.InDeltaSlice(rowSums, resRows, delta)

	resCols := ColMeans(m)
	assert.InDeltaSlice(colMeans, resCols, delta)

	assert.Panics(func() { RowSums(nil) })
	assert.Panics(func() { ColMeans(nil) })
}

func TestMaxAbsRowNorms(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 2, []float64{3, -4, 0, 1})

	assert.Equal(4.0, MaxAbs(m))
	assert.InDeltaSlice([]float64{5, 1}, RowNorms(m), 1e-12)
}

func TestDiff(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(4, 1, []float64{0, 1, 3, 6})

	d, err := Diff(m, 10, 1)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{10, 20, 30, 0}, mat.Col(nil, 0, d), 1e-12)

	dd, err := Diff(d, 10, 2)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{100, 100, 0, 0}, mat.Col(nil, 0, dd), 1e-12)

	for _, pad := range []int{0, 4, 5} {
		d, err := Diff(m, 1, pad)
		assert.Nil(d)
		assert.Error(err)
	}
}

func TestPadEnd(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	p := PadEnd(m, 4)
	assert.True(mat.Equal(mat.NewDense(4, 2, []float64{1, 2, 3, 4, 3, 4, 3, 4}), p))

	p = PadEnd(m, 1)
	assert.True(mat.Equal(m, p))
	p.Set(0, 0, 10)
	assert.Equal(1.0, m.At(0, 0))

	assert.Nil(PadEnd(nil, 3))
}
