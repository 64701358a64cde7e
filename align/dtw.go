package align

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvlath/dtw"
	"gonum.org/v1/gonum/mat"
)

// Metric selects how distances between multivariate series are computed
type Metric int

const (
	// Dependent warps all dimensions together along a single path
	Dependent Metric = iota
	// Independent warps every dimension separately and sums the distances
	Independent
)

// String implements the Stringer interface.
func (m Metric) String() string {
	switch m {
	case Dependent:
		return "dependent"
	case Independent:
		return "independent"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// costMatrix computes the accumulated DTW cost between rows of a and b.
// The returned matrix has r+1 rows and c+1 columns; cell [i+1][j+1] holds the cost of
// aligning a[:i+1] with b[:j+1]. Cells outside the band stay +Inf.
// window bounds |i-j| (shifted by the length difference); non-positive window disables it.
// The first psi samples of either series may be skipped for free.
func costMatrix(a, b *mat.Dense, window, psi int) [][]float64 {
	r, _ := a.Dims()
	c, _ := b.Dims()

	if window <= 0 {
		window = max(r, c)
	}

	D := make([][]float64, r+1)
	for i := range D {
		D[i] = make([]float64, c+1)
		for j := range D[i] {
			D[i][j] = math.Inf(1)
		}
	}
	D[0][0] = 0
	for j := 0; j <= min(psi, c); j++ {
		D[0][j] = 0
	}
	for i := 0; i <= min(psi, r); i++ {
		D[i][0] = 0
	}

	for i := 0; i < r; i++ {
		lo := max(0, i-max(0, r-c)-window+1)
		hi := min(c, i+max(0, c-r)+window)
		ai := a.RawRowView(i)
		for j := lo; j < hi; j++ {
			d := sqDist(ai, b.RawRowView(j))
			D[i+1][j+1] = d + min(D[i][j], D[i][j+1], D[i+1][j])
		}
	}

	return D
}

// endCell returns the cell the optimal path ends in.
// With psi relaxation the path may end anywhere in the last psi+1 cells of the last row or column.
func endCell(D [][]float64, psi int) (int, int) {
	r, c := len(D)-1, len(D[0])-1
	bi, bj := r, c
	if psi <= 0 {
		return bi, bj
	}

	best := D[r][c]
	for j := c - 1; j >= max(0, c-psi); j-- {
		if D[r][j] < best {
			best, bi, bj = D[r][j], r, j
		}
	}
	for i := r - 1; i >= max(0, r-psi); i-- {
		if D[i][c] < best {
			best, bi, bj = D[i][c], i, c
		}
	}

	return bi, bj
}

// Distance returns the multivariate DTW distance between rows of a and b:
// the square root of the accumulated squared Euclidean distance along the optimal path.
// It returns error if a and b differ in column count or are empty.
func Distance(a, b *mat.Dense, window, psi int) (float64, error) {
	if err := checkSeries(a, b); err != nil {
		return 0, err
	}

	D := costMatrix(a, b, window, psi)
	i, j := endCell(D, psi)

	return math.Sqrt(D[i][j]), nil
}

// Path returns the optimal DTW warping path between rows of a and b.
// Each path element stores an index into a and an index into b.
// It returns error if a and b differ in column count or are empty, or if no path
// exists within the window.
func Path(a, b *mat.Dense, window, psi int) ([][2]int, error) {
	if err := checkSeries(a, b); err != nil {
		return nil, err
	}

	D := costMatrix(a, b, window, psi)
	i, j := endCell(D, psi)
	if math.IsInf(D[i][j], 1) {
		return nil, fmt.Errorf("no warping path within window %d", window)
	}

	var path [][2]int
	for i > 0 && j > 0 {
		path = append(path, [2]int{i - 1, j - 1})
		diag, up, left := D[i-1][j-1], D[i-1][j], D[i][j-1]
		switch {
		case diag <= up && diag <= left:
			i, j = i-1, j-1
		case up <= left:
			i--
		default:
			j--
		}
	}

	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}

	return path, nil
}

// IndependentDistance returns the sum of one dimensional DTW distances computed
// separately for every column of a and b.
func IndependentDistance(a, b *mat.Dense) (float64, error) {
	if err := checkSeries(a, b); err != nil {
		return 0, err
	}

	_, cols := a.Dims()
	opts := &dtw.DTWOptions{MemoryMode: dtw.RollingArray}

	var sum float64
	for j := 0; j < cols; j++ {
		d, _, err := dtw.DTW(mat.Col(nil, j, a), mat.Col(nil, j, b), opts)
		if err != nil {
			return 0, err
		}
		sum += d
	}

	return sum, nil
}

func checkSeries(a, b *mat.Dense) error {
	if a == nil || b == nil || a.IsEmpty() || b.IsEmpty() {
		return fmt.Errorf("invalid series: %w", ErrDims)
	}

	_, ca := a.Dims()
	_, cb := b.Dims()
	if ca != cb {
		return fmt.Errorf("invalid series dimensions %d != %d: %w", ca, cb, ErrDims)
	}

	return nil
}

func sqDist(a, b []float64) float64 {
	var d float64
	for k := range a {
		diff := a[k] - b[k]
		d += diff * diff
	}

	return d
}

// MarshalText implements the encoding.TextMarshaler interface.
func (m Metric) MarshalText() ([]byte, error) {
	switch m {
	case Dependent, Independent:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("invalid metric: %d", int(m))
	}
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (m *Metric) UnmarshalText(text []byte) error {
	switch string(text) {
	case "dependent":
		*m = Dependent
	case "independent":
		*m = Independent
	default:
		return fmt.Errorf("invalid metric: %q", text)
	}

	return nil
}
