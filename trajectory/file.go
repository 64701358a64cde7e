package trajectory

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"gonum.org/v1/gonum/mat"
)

// Dof is the number of joints recorded in demonstration files
const Dof = 6

var (
	// ErrExtension is returned when a demonstration file is not a JSON file
	ErrExtension = errors.New("unsupported file extension")
	// ErrNoDemos is returned when no valid demonstration could be loaded
	ErrNoDemos = errors.New("no valid demonstrations")
)

var (
	timeField   = "timestamp"
	tcpFields   = []string{"tcp_x", "tcp_y", "tcp_z"}
	jointFields = []string{"joint_1", "joint_2", "joint_3", "joint_4", "joint_5", "joint_6"}
)

// ReadFile reads a recorded demonstration from a JSON file at path.
// The file maps field names to equal-length arrays of numbers; timestamp, tcp_x, tcp_y, tcp_z
// and joint_1 to joint_6 are required, any other fields are ignored.
func ReadFile(path string) (*Timed, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("%s: %w", path, ErrExtension)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse parses a recorded demonstration from JSON data.
func Parse(data []byte) (*Timed, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON demonstration")
	}

	t, err := column(data, timeField, -1)
	if err != nil {
		return nil, err
	}
	n := len(t)

	joints := mat.NewDense(n, len(jointFields), nil)
	for j, field := range jointFields {
		col, err := column(data, field, n)
		if err != nil {
			return nil, err
		}
		joints.SetCol(j, col)
	}

	tcp := mat.NewDense(n, len(tcpFields), nil)
	for j, field := range tcpFields {
		col, err := column(data, field, n)
		if err != nil {
			return nil, err
		}
		tcp.SetCol(j, col)
	}

	return New(t, joints, tcp)
}

// column extracts a numeric array field from data.
// If n is not negative the array must have exactly n values.
func column(data []byte, field string, n int) ([]float64, error) {
	res := gjson.GetBytes(data, field)
	if !res.Exists() || !res.IsArray() {
		return nil, fmt.Errorf("field %q: %w", field, ErrMissing)
	}

	vals := res.Array()
	if n >= 0 && len(vals) != n {
		return nil, fmt.Errorf("field %q has %d values, expected %d: %w", field, len(vals), n, ErrDims)
	}

	col := make([]float64, len(vals))
	for i, v := range vals {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("field %q value %d: %w", field, i, ErrMissing)
		}
		col[i] = v.Float()
	}

	return col, nil
}

// LoadDir reads all JSON demonstrations found in dir and its subdirectories in lexical order.
// Demonstrations which fail to load are logged and skipped.
// It returns ErrNoDemos if no demonstration could be loaded.
func LoadDir(dir string, logger *slog.Logger) ([]*Timed, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var demos []*Timed
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		tr, err := ReadFile(path)
		if err != nil {
			logger.Error("rejected demonstration", "path", path, "error", err)
			return nil
		}
		logger.Debug("loaded demonstration", "path", path, "samples", tr.Len())
		demos = append(demos, tr)

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(demos) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoDemos)
	}

	return demos, nil
}
