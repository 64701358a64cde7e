package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RowSums returns a slice containing m row sums.
// It panics if m is nil.
func RowSums(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	sum := make([]float64, rows)

	for i := 0; i < rows; i++ {
		sum[i] = floats.Sum(m.RawRowView(i))
	}

	return sum
}

// ColMeans returns a slice containing m column means.
// It panics if m is nil.
func ColMeans(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	means := make([]float64, cols)

	for j := 0; j < cols; j++ {
		means[j] = mat.Sum(m.ColView(j)) / float64(rows)
	}

	return means
}

// MaxAbs returns the largest absolute value stored in m.
// It panics if m is nil.
func MaxAbs(m *mat.Dense) float64 {
	rows, _ := m.Dims()
	max := 0.0

	for i := 0; i < rows; i++ {
		for _, v := range m.RawRowView(i) {
			if v < 0 {
				v = -v
			}
			if v > max {
				max = v
			}
		}
	}

	return max
}

// Diff returns forward differences of m rows scaled by scale.
// The returned matrix has the same dimensions as m: the last pad rows are zero.
// It returns error if pad is not positive or m does not have more than pad rows.
func Diff(m *mat.Dense, scale float64, pad int) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if pad < 1 || rows <= pad {
		return nil, fmt.Errorf("invalid number of rows: %d", rows)
	}

	d := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows-1; i++ {
		next, curr := m.RawRowView(i+1), m.RawRowView(i)
		row := d.RawRowView(i)
		floats.SubTo(row, next, curr)
		floats.Scale(scale, row)
	}
	for i := rows - pad; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d.Set(i, j, 0)
		}
	}

	return d, nil
}

// RowNorms returns Euclidean norms of m rows.
// It panics if m is nil.
func RowNorms(m mat.Matrix) []float64 {
	rows, _ := m.Dims()
	norms := make([]float64, rows)

	for i := 0; i < rows; i++ {
		norms[i] = floats.Norm(mat.Row(nil, i, m), 2)
	}

	return norms
}

// PadEnd returns m extended to n rows by repeating its last row.
// It returns nil if m is nil and a copy of m if n does not exceed its row count.
func PadEnd(m *mat.Dense, n int) *mat.Dense {
	if m == nil {
		return nil
	}

	rows, cols := m.Dims()
	if n <= rows {
		return mat.DenseCopyOf(m)
	}

	out := mat.NewDense(n, cols, nil)
	out.Slice(0, rows, 0, cols).(*mat.Dense).Copy(m)
	for i := rows; i < n; i++ {
		out.SetRow(i, m.RawRowView(rows-1))
	}

	return out
}
