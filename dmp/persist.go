package dmp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/milosgajdos/go-lfd/trajectory"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

const (
	// RegressionFile stores the demonstration as NumPy array of timestamp and joint rows
	RegressionFile = "regression.npy"
	// ParamsFile stores the model parameters as JSON
	ParamsFile = "dmp_parameters.json"
)

var (
	// ErrExists is returned when saving would overwrite an existing file
	ErrExists = trajectory.ErrExists
	// ErrNotFound is returned when a model file is missing
	ErrNotFound = errors.New("model file not found")
)

// create creates a new file at path.
func create(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrExists)
		}
		return nil, err
	}

	return f, nil
}

// writeNew writes data to a new file at path.
func writeNew(path string, data []byte) error {
	f, err := create(path)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Save writes the demonstration and parameters of m into dir.
// Kernel weights are not stored: Load fits them again.
// Save creates dir if its parent exists. It returns ErrExists if any model file
// already exists in dir. Files and directories created by a failed Save are removed.
func Save(dir string, m *Model) error {
	return save(dir, m, writeNew)
}

func save(dir string, m *Model, writeParams func(string, []byte) error) (err error) {
	created := true
	if err := os.Mkdir(dir, 0o755); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create model directory: %w", err)
		}
		created = false
	}
	defer func() {
		if err != nil && created {
			os.Remove(dir)
		}
	}()

	regPath := filepath.Join(dir, RegressionFile)
	paramsPath := filepath.Join(dir, ParamsFile)
	for _, p := range []string{regPath, paramsPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%s: %w", p, ErrExists)
		}
	}

	data, err := json.Marshal(m.Params())
	if err != nil {
		return err
	}

	f, err := create(regPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(regPath)
		}
	}()

	if err := npyio.Write(f, m.demo.traj.TimeJoints()); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", regPath, err)
	}

	if err := f.Close(); err != nil {
		return err
	}

	if err := writeParams(paramsPath, data); err != nil {
		return fmt.Errorf("write %s: %w", paramsPath, err)
	}

	return nil
}

// Load reads a model saved with Save from dir and fits it again.
// It returns ErrNotFound if any model file is missing.
func Load(dir string) (*Model, error) {
	regPath := filepath.Join(dir, RegressionFile)
	paramsPath := filepath.Join(dir, ParamsFile)
	for _, p := range []string{regPath, paramsPath} {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
	}

	f, err := os.Open(regPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reg mat.Dense
	if err := npyio.Read(f, &reg); err != nil {
		return nil, fmt.Errorf("read %s: %w", regPath, err)
	}

	_, cols := reg.Dims()
	tr, err := trajectory.FromRows(&reg, cols-1)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(paramsPath)
	if err != nil {
		return nil, err
	}

	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters file %s: %w", paramsPath, err)
	}

	demo, err := NewDemo(tr)
	if err != nil {
		return nil, err
	}

	return Fit(demo, p)
}
