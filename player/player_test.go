package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/milosgajdos/go-lfd/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// controller records targets and fails after failAfter moves when set
type controller struct {
	targets   []string
	joints    []float64
	failAfter int
	cancel    context.CancelFunc
}

func (c *controller) Move(ctx context.Context, target string) error {
	if c.failAfter > 0 && len(c.targets) == c.failAfter {
		return errors.New("motors off")
	}
	c.targets = append(c.targets, target)
	if c.cancel != nil && len(c.targets) == 1 {
		c.cancel()
	}
	return nil
}

func (c *controller) State(ctx context.Context) ([]float64, []float64, error) {
	if c.joints == nil {
		return nil, nil, errors.New("not connected")
	}
	return c.joints, []float64{0, 0, 0, 1, 0, 0, 0}, nil
}

func motion(t *testing.T) *trajectory.Motion {
	m, err := trajectory.NewMotion(mat.NewDense(4, 2, []float64{
		0, 0,
		0.01, 0,
		0.5, -0.25,
		1.23456, 2,
	}))
	require.NoError(t, err)

	return m
}

func TestTarget(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("[[1.235,-2,0.1],[9E+09,9E+09,9E+09,9E+09,9E+09,9E+09]]", Target([]float64{1.23456, -2, 0.1}))
	assert.Equal("[[],[9E+09,9E+09,9E+09,9E+09,9E+09,9E+09]]", Target(nil))
}

func TestPlay(t *testing.T) {
	assert := assert.New(t)

	c := &controller{}
	n, err := Play(context.Background(), c, motion(t), DefaultTol, logger)
	assert.NoError(err)
	assert.Equal(3, n)
	assert.Equal([]string{
		Target([]float64{0, 0}),
		Target([]float64{0.5, -0.25}),
		Target([]float64{1.23456, 2}),
	}, c.targets)

	c = &controller{failAfter: 1}
	n, err = Play(context.Background(), c, motion(t), DefaultTol, logger)
	assert.Error(err)
	assert.Equal(1, n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c = &controller{cancel: cancel}
	n, err = Play(ctx, c, motion(t), DefaultTol, logger)
	assert.True(errors.Is(err, context.Canceled))
	assert.Equal(1, n)
}

func TestJointError(t *testing.T) {
	assert := assert.New(t)

	c := &controller{joints: []float64{1, 2}}
	e, err := JointError(context.Background(), c, []float64{4, 6})
	assert.NoError(err)
	assert.Equal(5.0, e)

	_, err = JointError(context.Background(), c, []float64{1, 2, 3})
	assert.True(errors.Is(err, ErrDims))

	_, err = JointError(context.Background(), &controller{}, []float64{1, 2})
	assert.Error(err)
}
