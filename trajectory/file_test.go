package trajectory

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demo = `{
	"timestamp": [0.0, 0.1, 0.2],
	"tcp_x": [1, 2, 3], "tcp_y": [4, 5, 6], "tcp_z": [7, 8, 9],
	"tcp_q1": [1, 1, 1], "cf1": [0, 0, 0],
	"joint_1": [0.1, 0.2, 0.3], "joint_2": [0, 0, 0], "joint_3": [0, 0, 0],
	"joint_4": [0, 0, 0], "joint_5": [0, 0, 0], "joint_6": [1, 2, 3]
}`

func writeFile(t *testing.T, dir, name, data string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestParse(t *testing.T) {
	assert := assert.New(t)

	tr, err := Parse([]byte(demo))
	assert.NoError(err)
	assert.Equal(3, tr.Len())
	assert.Equal(Dof, tr.Dof())
	assert.Equal([]float64{0.3, 0, 0, 0, 0, 3}, tr.JointsAt(2))
	tcp, err := tr.TCP()
	assert.NoError(err)
	assert.Equal(6.0, tcp.At(2, 1))

	for _, test := range []struct {
		data string
		err  error
	}{
		{data: `{"timestamp": [0, 1]}`, err: ErrMissing},
		{data: `{"timestamp": [0, 1], "joint_1": [0], "joint_2": [0, 0]}`, err: ErrDims},
		{data: `{"timestamp": [0, null]}`, err: ErrMissing},
	} {
		tr, err := Parse([]byte(test.data))
		assert.Nil(tr)
		assert.True(errors.Is(err, test.err), "%v", err)
	}

	_, err = Parse([]byte(`{"timestamp": [`))
	assert.Error(err)
}

func TestReadFile(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()

	tr, err := ReadFile(writeFile(t, dir, "demo.json", demo))
	assert.NoError(err)
	assert.Equal(3, tr.Len())

	_, err = ReadFile(writeFile(t, dir, "demo.txt", demo))
	assert.True(errors.Is(err, ErrExtension))

	_, err = ReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(err)
}

func TestLoadDir(t *testing.T) {
	assert := assert.New(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	writeFile(t, dir, "b.json", demo)
	writeFile(t, dir, "sub/a.json", demo)
	writeFile(t, dir, "bad.json", `{"timestamp": [0.2, 0.1]}`)
	writeFile(t, dir, "notes.txt", "ignored")

	demos, err := LoadDir(dir, logger)
	assert.NoError(err)
	assert.Len(demos, 2)

	empty := t.TempDir()
	writeFile(t, empty, "bad.json", `{}`)
	_, err = LoadDir(empty, logger)
	assert.True(errors.Is(err, ErrNoDemos))
}
